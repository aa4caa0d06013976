// Package stripe creates card payment methods against the venue's connected
// Stripe account, using the publishable key the booking API hands out.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBase = "https://api.stripe.com"

type Client struct {
	hc   *http.Client
	base string
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Client {
	return &Client{
		hc:   &http.Client{Timeout: 30 * time.Second},
		base: defaultBase,
		log:  log.With().Str("component", "stripe").Logger(),
	}
}

// NewWithBase points the client at a different API host (for tests).
func NewWithBase(base string, log zerolog.Logger) *Client {
	c := New(log)
	c.base = base
	return c
}

type PaymentMethodParams struct {
	Key     string // publishable key
	Account string // connected account id
	Email   string

	CardNumber string
	ExpMonth   string
	ExpYear    string
	CVC        string
}

type PaymentMethod struct {
	ID string `json:"id"`
}

func (c *Client) CreatePaymentMethod(ctx context.Context, p PaymentMethodParams) (PaymentMethod, error) {
	form := url.Values{
		"type":                   {"card"},
		"allow_redisplay":        {"unspecified"},
		"billing_details[email]": {p.Email},
		"card[number]":           {p.CardNumber},
		"card[exp_month]":        {p.ExpMonth},
		"card[exp_year]":         {p.ExpYear},
		"card[cvc]":              {p.CVC},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/payment_methods", strings.NewReader(form.Encode()))
	if err != nil {
		return PaymentMethod{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.Key)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Stripe-Account", p.Account)

	c.log.Debug().Str("account", p.Account).Msg("creating payment method")
	res, err := c.hc.Do(req)
	if err != nil {
		return PaymentMethod{}, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return PaymentMethod{}, err
	}
	if res.StatusCode >= 300 {
		return PaymentMethod{}, fmt.Errorf("create payment method: status %d", res.StatusCode)
	}

	var pm PaymentMethod
	if err := json.Unmarshal(b, &pm); err != nil {
		return PaymentMethod{}, fmt.Errorf("decode payment method: %w", err)
	}
	if pm.ID == "" {
		return PaymentMethod{}, fmt.Errorf("payment method response missing id")
	}
	return pm, nil
}
