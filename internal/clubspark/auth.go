package clubspark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/token"
	"github.com/rs/zerolog"
)

// AuthClient speaks the provider's OAuth2 token endpoint: password grant for
// first acquisition, refresh_token grant afterwards. Client credentials go in
// a basic auth header; the body is JSON (the mobile app's dialect, not form
// encoding).
type AuthClient struct {
	hc        *http.Client
	tokenURL  string
	scope     string
	basicAuth string
	log       zerolog.Logger
}

func NewAuthClient(a config.Auth, log zerolog.Logger) *AuthClient {
	creds := a.ClientID + ":" + a.ClientSecret
	return &AuthClient{
		hc:        &http.Client{Timeout: 30 * time.Second},
		tokenURL:  a.TokenURL,
		scope:     a.Scope,
		basicAuth: "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)),
		log:       log.With().Str("component", "clubspark-auth").Logger(),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (a *AuthClient) PasswordGrant(ctx context.Context, username, password string) (token.Credential, error) {
	a.log.Info().Str("username", username).Msg("requesting token via password grant")
	return a.grant(ctx, map[string]string{
		"grant_type": "password",
		"scope":      a.scope,
		"username":   username,
		"password":   password,
	})
}

func (a *AuthClient) RefreshGrant(ctx context.Context, refreshToken string) (token.Credential, error) {
	a.log.Info().Msg("refreshing access token")
	return a.grant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"scope":         a.scope,
		"refresh_token": refreshToken,
	})
}

func (a *AuthClient) grant(ctx context.Context, body map[string]string) (token.Credential, error) {
	jb, err := json.Marshal(body)
	if err != nil {
		return token.Credential{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, bytes.NewReader(jb))
	if err != nil {
		return token.Credential{}, err
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", a.basicAuth)
	req.Header.Set("user-agent", userAgent)

	res, err := a.hc.Do(req)
	if err != nil {
		return token.Credential{}, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return token.Credential{}, err
	}
	if res.StatusCode >= 300 {
		return token.Credential{}, fmt.Errorf("token endpoint returned status %d: %s", res.StatusCode, truncate(b, 200))
	}

	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return token.Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return token.Credential{}, fmt.Errorf("token endpoint returned no access token")
	}
	return token.Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
		TokenType:    tr.TokenType,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
