package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

// Tolerance bounds the clock skew accepted on signed webhooks.
const Tolerance = 5 * time.Minute

var (
	ErrMissingHeaders = errors.New("missing webhook signature headers")
	ErrBadTimestamp   = errors.New("webhook timestamp outside tolerance")
	ErrBadSignature   = errors.New("webhook signature mismatch")
)

// Verifier checks svix signed webhooks. Header and timestamp problems are
// reported with their own errors so callers can tell a malformed request
// from a forged one.
type Verifier struct {
	wh  *svix.Webhook
	now func() time.Time
}

// NewVerifier takes the "whsec_" secret from the identity provider's dashboard.
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" || secret == "whsec_" {
		return nil, errors.New("webhook secret is empty")
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("decode webhook secret: %w", err)
	}
	return &Verifier{wh: wh, now: time.Now}, nil
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers
// against body.
func (v *Verifier) Verify(h http.Header, body []byte) error {
	rawTS := h.Get("svix-timestamp")
	if h.Get("svix-id") == "" || rawTS == "" || h.Get("svix-signature") == "" {
		return ErrMissingHeaders
	}

	secs, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	if d := v.now().Sub(time.Unix(secs, 0)); d > Tolerance || d < -Tolerance {
		return ErrBadTimestamp
	}

	if err := v.wh.Verify(body, h); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}
