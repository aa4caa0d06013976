// Package clubspark is a client for the ClubSpark booking platform, covering
// the token endpoint and the handful of booking calls the orchestrator needs.
package clubspark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/example/court-scheduler/internal/token"
	"github.com/rs/zerolog"
)

const userAgent = "ClubSparkPlayers/3.7.0 (com.sportlabs.ClubSparkPlayers; iOS)"

// TokenSource supplies a currently-valid credential for each request.
// Implemented by *token.Manager.
type TokenSource interface {
	GetValidCredential(ctx context.Context) (token.Credential, error)
}

// Client calls the booking API as one authenticated user. Every request asks
// the token source for a valid credential, so token refresh is transparent to
// callers.
type Client struct {
	hc     *http.Client
	base   string
	tokens TokenSource
	log    zerolog.Logger
}

func NewClient(base string, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		hc:     &http.Client{Timeout: 30 * time.Second},
		base:   base,
		tokens: tokens,
		log:    log.With().Str("component", "clubspark").Logger(),
	}
}

func (c *Client) GetCurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.get(ctx, "/v2/User/GetCurrentUser", &u)
	return u, err
}

func (c *Client) GetAvailabilityTimes(ctx context.Context, venue, date string, duration int) (Availability, error) {
	var a Availability
	path := fmt.Sprintf("/v1/VenueBooking/%s/GetAvailabilityTimes?Duration=%d&Date=%s&resourceCategory=1",
		venue, duration, date)
	err := c.get(ctx, path, &a)
	return a, err
}

func (c *Client) GetAppSettings(ctx context.Context, venue string) (AppSettings, error) {
	var s AppSettings
	err := c.get(ctx, "/v0/VenueBooking/"+venue+"/GetAppSettings", &s)
	return s, err
}

func (c *Client) CreatePayment(ctx context.Context, p CreatePaymentParams) (Payment, error) {
	body := map[string]any{
		"Description":     p.Description,
		"Cost":            p.Cost,
		"PaymentParams":   `["booking-default"]`,
		"PaymentMethodID": p.PaymentMethodID,
		"ScopeID":         p.ScopeID,
		"VenueID":         p.VenueID,
	}
	var out Payment
	err := c.post(ctx, "/Payment/CreatePayment", body, &out)
	return out, err
}

func (c *Client) RequestSession(ctx context.Context, p RequestSessionParams) (BookedSession, error) {
	amount := strconv.FormatFloat(p.Amount, 'f', -1, 64)
	body := map[string]any{
		"CreditsApplied": "0",
		"PaymentToken":   p.PaymentToken,
		"Date":           p.Date,
		"Duration":       p.Duration,
		"Source":         "iOS",
		"TotalPaid":      amount,
		"StartTime":      p.StartTime,
		"GrossAmount":    amount,
		"ResourceID":     p.ResourceID,
		"SessionID":      p.SessionID,
		"NetAmount":      amount,
	}
	var out BookedSession
	err := c.post(ctx, "/v0/VenueBooking/"+p.Venue+"/RequestSession", body, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		jb, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(jb)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}

	cred, err := c.tokens.GetValidCredential(ctx)
	if err != nil {
		return fmt.Errorf("obtain credential: %w", err)
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set("appname", "cspl")
	req.Header.Set("appversion", "2.0")
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("authorization", "Lta-Auth "+cred.AccessToken)
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("api request")
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, res.StatusCode, truncate(b, 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
