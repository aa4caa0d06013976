// Package booking drives one reservation attempt end to end: authenticate,
// discover availability, rank candidates, take payment and request the
// session, retrying across ranked candidates.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/court-scheduler/internal/clubspark"
	"github.com/example/court-scheduler/internal/config"
	"github.com/example/court-scheduler/internal/stripe"
	"github.com/example/court-scheduler/internal/token"
	"github.com/rs/zerolog"
)

// Outcome is the terminal result of one booking attempt.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeAuthFailed          Outcome = "auth_failed"
	OutcomeNoAvailability      Outcome = "no_availability"
	OutcomeNoMatchingCandidate Outcome = "no_matching_candidate"
	OutcomePaymentFailed       Outcome = "payment_failed"
	OutcomeReservationFailed   Outcome = "reservation_failed"
	OutcomeRetriesExhausted    Outcome = "retries_exhausted"
)

var (
	// ErrNoAvailability and ErrNoMatchingCandidate are expected
	// "nothing to book" results, not exceptional conditions.
	ErrNoAvailability      = errors.New("no available slots for the requested date")
	ErrNoMatchingCandidate = errors.New("no available slots match the preferred times/courts")
	ErrRetriesExhausted    = errors.New("could not book any ranked candidate")
)

// DefaultRetryCap bounds how many ranked candidates one attempt will try.
const DefaultRetryCap = 3

// API is the booking platform surface the orchestrator needs. Implemented by
// *clubspark.Client.
type API interface {
	GetCurrentUser(ctx context.Context) (clubspark.User, error)
	GetAvailabilityTimes(ctx context.Context, venue, date string, duration int) (clubspark.Availability, error)
	GetAppSettings(ctx context.Context, venue string) (clubspark.AppSettings, error)
	CreatePayment(ctx context.Context, p clubspark.CreatePaymentParams) (clubspark.Payment, error)
	RequestSession(ctx context.Context, p clubspark.RequestSessionParams) (clubspark.BookedSession, error)
}

// PaymentAPI creates the card payment method. Implemented by *stripe.Client.
type PaymentAPI interface {
	CreatePaymentMethod(ctx context.Context, p stripe.PaymentMethodParams) (stripe.PaymentMethod, error)
}

// Notifier reports terminal failures to the user. Implemented by
// *notify.Mailer.
type Notifier interface {
	Send(ctx context.Context, subject, body, recipient string) error
}

// Attempt is one row in the attempt log.
type Attempt struct {
	UserID  string
	Venue   string
	Date    time.Time
	Outcome Outcome
	Error   string
}

// AttemptRecorder persists attempt outcomes. Implemented by
// *credentials.Store.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
}

// Booker runs booking attempts for one authenticated user. Attempts for
// different users or slots may run concurrently; all state here is read-only
// after construction, and everything attempt-local is discarded when Book
// returns.
type Booker struct {
	Tokens   clubspark.TokenSource
	API      API
	Payments PaymentAPI
	Notifier Notifier        // optional
	Attempts AttemptRecorder // optional

	EmailsEnabled bool
	RetryCap      int // 0 means DefaultRetryCap
	Log           zerolog.Logger
}

// Book runs one attempt to a terminal state. The returned error carries the
// failure detail; the Outcome classifies it. Terminal failures are reported
// via the notifier when e-mails are enabled and always recorded in the
// attempt log.
func (b *Booker) Book(ctx context.Context, user config.User, slot config.Slot, date time.Time) (Outcome, error) {
	log := b.Log.With().
		Str("component", "booking").
		Str("user", user.ID).
		Str("venue", slot.TargetVenue).
		Str("date", date.Format("2006-01-02")).
		Logger()

	outcome, err := b.book(ctx, log, user, slot, date)
	if err != nil {
		log.Error().Err(err).Str("outcome", string(outcome)).Msg("booking attempt failed")
		b.notifyFailure(ctx, log, user, slot, date, err)
	} else {
		log.Info().Msg("booking attempt succeeded")
	}

	if b.Attempts != nil {
		a := Attempt{UserID: user.ID, Venue: slot.TargetVenue, Date: date, Outcome: outcome}
		if err != nil {
			a.Error = err.Error()
		}
		if rerr := b.Attempts.RecordAttempt(ctx, a); rerr != nil {
			log.Warn().Err(rerr).Msg("could not record attempt")
		}
	}
	return outcome, err
}

func (b *Booker) book(ctx context.Context, log zerolog.Logger, user config.User, slot config.Slot, date time.Time) (Outcome, error) {
	dateStr := date.Format("2006-01-02")

	// Authenticate up front: an attempt with no usable credential is dead on
	// arrival, and failing here keeps the failure out of the candidate loop.
	if _, err := b.Tokens.GetValidCredential(ctx); err != nil {
		return OutcomeAuthFailed, fmt.Errorf("authenticate: %w", err)
	}

	me, err := b.API.GetCurrentUser(ctx)
	if err != nil {
		return b.classify(err, "fetch profile")
	}

	duration := 60
	if slot.DoubleSession {
		duration = 120
	}

	avail, err := b.API.GetAvailabilityTimes(ctx, slot.TargetVenue, dateStr, duration)
	if err != nil {
		return b.classify(err, "fetch availability")
	}
	if len(avail.Times) == 0 {
		return OutcomeNoAvailability, ErrNoAvailability
	}
	for _, ts := range avail.Times {
		log.Debug().Int("start", ts.Time).Int("courts", len(ts.Resources)).Msg("available slot")
	}

	ranked := Rank(avail.Times, slot)
	if len(ranked) == 0 {
		return OutcomeNoMatchingCandidate, ErrNoMatchingCandidate
	}
	for _, c := range ranked {
		log.Info().Int("score", c.Score).Int("start", c.StartTime).Str("court", c.Resource.Name).Msg("ranked candidate")
	}

	settings, err := b.API.GetAppSettings(ctx, slot.TargetVenue)
	if err != nil {
		return b.classify(err, "fetch venue settings")
	}

	expMonth, expYear, err := splitCardExpiry(user.CardExpiry)
	if err != nil {
		return OutcomePaymentFailed, err
	}

	// One payment method per attempt, reused across candidate retries.
	pm, err := b.Payments.CreatePaymentMethod(ctx, stripe.PaymentMethodParams{
		Key:        settings.StripePublishableKey,
		Account:    settings.Venue.StripeAccountID,
		Email:      me.EmailAddress,
		CardNumber: user.CardNumber,
		ExpMonth:   expMonth,
		ExpYear:    expYear,
		CVC:        user.CardCVC,
	})
	if err != nil {
		return OutcomePaymentFailed, fmt.Errorf("create payment method: %w", err)
	}
	log.Info().Str("payment_method", pm.ID).Msg("created payment method")

	retryCap := b.RetryCap
	if retryCap <= 0 {
		retryCap = DefaultRetryCap
	}
	for i, cand := range ranked {
		if i >= retryCap {
			log.Info().Int("cap", retryCap).Msg("hit retry cap")
			break
		}
		// One candidate's failure never aborts the attempt while candidates
		// remain; it is logged and the loop moves on.
		if err := b.attemptCandidate(ctx, log, me, slot, settings, pm, cand, duration, dateStr); err != nil {
			log.Error().Err(err).Str("court", cand.Resource.Name).Int("start", cand.StartTime).Msg("candidate failed")
			continue
		}
		return OutcomeSuccess, nil
	}
	return OutcomeRetriesExhausted, ErrRetriesExhausted
}

func (b *Booker) attemptCandidate(ctx context.Context, log zerolog.Logger, me clubspark.User, slot config.Slot,
	settings clubspark.AppSettings, pm stripe.PaymentMethod, cand Candidate, duration int, date string) error {

	log.Info().Str("court", cand.Resource.Name).Int("start", cand.StartTime).Msg("attempting candidate")

	payment, err := b.API.CreatePayment(ctx, clubspark.CreatePaymentParams{
		Description:     strings.TrimSpace(me.FirstName + " " + me.LastName),
		Cost:            cand.Resource.Cost,
		PaymentMethodID: pm.ID,
		ScopeID:         cand.Resource.SessionID,
		VenueID:         settings.Venue.ID,
	})
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	if payment.ID == "" {
		return fmt.Errorf("payment created without an id (status=%q error=%q)", payment.Status, payment.Error)
	}

	sess, err := b.API.RequestSession(ctx, clubspark.RequestSessionParams{
		Venue:        slot.TargetVenue,
		PaymentToken: payment.ID,
		Duration:     duration,
		Date:         date,
		Amount:       cand.Resource.Cost,
		StartTime:    cand.StartTime,
		ResourceID:   cand.Resource.ID,
		SessionID:    cand.Resource.SessionID,
	})
	if err != nil {
		return fmt.Errorf("request session: %w", err)
	}
	if sess.Result < 0 {
		return fmt.Errorf("session request rejected after payment (result=%d)", sess.Result)
	}

	log.Info().Str("transaction", sess.TransactionID).Msg("session booked")
	return nil
}

// classify maps step errors outside the candidate loop: auth failures are
// their own terminal class, everything else failed the reservation sequence
// before any candidate could be tried.
func (b *Booker) classify(err error, step string) (Outcome, error) {
	var ae *token.AuthError
	if errors.As(err, &ae) {
		return OutcomeAuthFailed, fmt.Errorf("%s: %w", step, err)
	}
	return OutcomeReservationFailed, fmt.Errorf("%s: %w", step, err)
}

func (b *Booker) notifyFailure(ctx context.Context, log zerolog.Logger, user config.User, slot config.Slot, date time.Time, cause error) {
	if b.Notifier == nil || user.Email == "" {
		return
	}
	if !b.EmailsEnabled {
		log.Info().Msg("suppressing failure notification (emails disabled)")
		return
	}
	subject := fmt.Sprintf("Failed to book %s on %s", slot.TargetVenue, date.Format("2006-01-02"))
	body := fmt.Sprintf("Error occurred while making booking: %v", cause)
	if err := b.Notifier.Send(ctx, subject, body, user.Email); err != nil {
		log.Warn().Err(err).Msg("failure notification could not be sent")
	}
}

func splitCardExpiry(s string) (month, year string, err error) {
	mm, yy, ok := strings.Cut(s, "/")
	if !ok {
		return "", "", fmt.Errorf("invalid card expiry %q (want MM/YY)", s)
	}
	m, err := strconv.Atoi(strings.TrimSpace(mm))
	if err != nil {
		return "", "", fmt.Errorf("invalid card expiry %q (want MM/YY)", s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(yy))
	if err != nil {
		return "", "", fmt.Errorf("invalid card expiry %q (want MM/YY)", s)
	}
	return strconv.Itoa(m), strconv.Itoa(y), nil
}
