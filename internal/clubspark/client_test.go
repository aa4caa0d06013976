package clubspark_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/court-scheduler/internal/clubspark"
	"github.com/example/court-scheduler/internal/token"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	cred token.Credential
	err  error
}

func (s staticTokens) GetValidCredential(ctx context.Context) (token.Credential, error) {
	return s.cred, s.err
}

func TestGetAvailabilityTimes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/VenueBooking/RiversideLTC/GetAvailabilityTimes", r.URL.Path)
		require.Equal(t, "120", r.URL.Query().Get("Duration"))
		require.Equal(t, "2025-09-16", r.URL.Query().Get("Date"))
		require.Equal(t, "1", r.URL.Query().Get("resourceCategory"))
		require.Equal(t, "Lta-Auth at", r.Header.Get("Authorization"))

		require.NoError(t, json.NewEncoder(w).Encode(clubspark.Availability{
			Times: []clubspark.TimeSlot{{
				Time:      1080,
				Resources: []clubspark.Resource{{ID: "r1", SessionID: "s1", Name: "Court 1", Cost: 8.5}},
			}},
		}))
	}))
	defer srv.Close()

	c := clubspark.NewClient(srv.URL, staticTokens{cred: token.Credential{AccessToken: "at"}}, zerolog.Nop())
	avail, err := c.GetAvailabilityTimes(context.Background(), "RiversideLTC", "2025-09-16", 120)
	require.NoError(t, err)
	require.Len(t, avail.Times, 1)
	require.Equal(t, 1080, avail.Times[0].Time)
	require.Equal(t, "Court 1", avail.Times[0].Resources[0].Name)
}

func TestRequestSessionBody(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v0/VenueBooking/RiversideLTC/RequestSession", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		require.NoError(t, json.NewEncoder(w).Encode(clubspark.BookedSession{Result: 0, TransactionID: "tx"}))
	}))
	defer srv.Close()

	c := clubspark.NewClient(srv.URL, staticTokens{cred: token.Credential{AccessToken: "at"}}, zerolog.Nop())
	sess, err := c.RequestSession(context.Background(), clubspark.RequestSessionParams{
		Venue:        "RiversideLTC",
		PaymentToken: "pay_1",
		Duration:     60,
		Date:         "2025-09-16",
		Amount:       8.5,
		StartTime:    1080,
		ResourceID:   "r1",
		SessionID:    "s1",
	})
	require.NoError(t, err)
	require.Equal(t, "tx", sess.TransactionID)

	// Monetary fields go over the wire as strings, credits and source fixed.
	require.Equal(t, "8.5", got["TotalPaid"])
	require.Equal(t, "8.5", got["GrossAmount"])
	require.Equal(t, "8.5", got["NetAmount"])
	require.Equal(t, "0", got["CreditsApplied"])
	require.Equal(t, "iOS", got["Source"])
	require.Equal(t, float64(1080), got["StartTime"])
}

func TestClientCredentialFailure(t *testing.T) {
	c := clubspark.NewClient("http://127.0.0.1:0", staticTokens{err: errors.New("no grant")}, zerolog.Nop())
	_, err := c.GetCurrentUser(context.Background())
	require.ErrorContains(t, err, "obtain credential")
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := clubspark.NewClient(srv.URL, staticTokens{cred: token.Credential{AccessToken: "at"}}, zerolog.Nop())
	_, err := c.GetAppSettings(context.Background(), "RiversideLTC")
	require.ErrorContains(t, err, "status 502")
}
