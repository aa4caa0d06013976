package stripe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/court-scheduler/internal/stripe"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testParams() stripe.PaymentMethodParams {
	return stripe.PaymentMethodParams{
		Key:        "pk_test",
		Account:    "acct_1",
		Email:      "alice@example.com",
		CardNumber: "4242424242424242",
		ExpMonth:   "4",
		ExpYear:    "27",
		CVC:        "123",
	}
}

func TestCreatePaymentMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/payment_methods", r.URL.Path)
		require.Equal(t, "Bearer pk_test", r.Header.Get("Authorization"))
		require.Equal(t, "acct_1", r.Header.Get("Stripe-Account"))
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		require.Equal(t, "card", r.PostForm.Get("type"))
		require.Equal(t, "4242424242424242", r.PostForm.Get("card[number]"))
		require.Equal(t, "4", r.PostForm.Get("card[exp_month]"))
		require.Equal(t, "27", r.PostForm.Get("card[exp_year]"))
		require.Equal(t, "123", r.PostForm.Get("card[cvc]"))
		require.Equal(t, "alice@example.com", r.PostForm.Get("billing_details[email]"))

		w.Write([]byte(`{"id":"pm_123"}`))
	}))
	defer srv.Close()

	c := stripe.NewWithBase(srv.URL, zerolog.Nop())
	pm, err := c.CreatePaymentMethod(context.Background(), testParams())
	require.NoError(t, err)
	require.Equal(t, "pm_123", pm.ID)
}

func TestCreatePaymentMethodErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"card_declined"}}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	c := stripe.NewWithBase(srv.URL, zerolog.Nop())
	_, err := c.CreatePaymentMethod(context.Background(), testParams())
	require.ErrorContains(t, err, "status 402")
}

func TestCreatePaymentMethodMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := stripe.NewWithBase(srv.URL, zerolog.Nop())
	_, err := c.CreatePaymentMethod(context.Background(), testParams())
	require.ErrorContains(t, err, "missing id")
}
