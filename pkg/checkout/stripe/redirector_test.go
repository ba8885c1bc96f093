package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/storefront/pkg/checkout"
	"github.com/mihaimyh/storefront/pkg/storefront"
)

var _ checkout.Redirector = (*Redirector)(nil)

type fakeSessions struct {
	session *stripe.CheckoutSession
	err     error
	ids     []string
}

func (f *fakeSessions) Retrieve(_ context.Context, id string) (*stripe.CheckoutSession, error) {
	f.ids = append(f.ids, id)
	return f.session, f.err
}

type openRecorder struct {
	opened []string
	err    error
}

func (o *openRecorder) open(url string) error {
	o.opened = append(o.opened, url)
	return o.err
}

func TestRedirectToURL(t *testing.T) {
	rec := &openRecorder{}
	r := NewRedirector(Config{Opener: rec.open})

	require.NoError(t, r.RedirectToURL(context.Background(), "https://checkout.stripe.com/c/pay/cs_1"))

	assert.Equal(t, []string{"https://checkout.stripe.com/c/pay/cs_1"}, rec.opened)
}

func TestRedirectToURL_OpenFailure(t *testing.T) {
	cause := errors.New("no browser")
	r := NewRedirector(Config{Opener: (&openRecorder{err: cause}).open})

	err := r.RedirectToURL(context.Background(), "https://checkout.stripe.com/x")

	assert.ErrorIs(t, err, storefront.ErrRedirect)
	assert.ErrorIs(t, err, cause)
}

func TestRedirectToSession(t *testing.T) {
	tests := []struct {
		name       string
		session    *stripe.CheckoutSession
		err        error
		wantOpened bool
	}{
		{
			name:       "open session",
			session:    &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusOpen, URL: "https://checkout.stripe.com/c/pay/cs_1"},
			wantOpened: true,
		},
		{
			name:    "completed session rejected",
			session: &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusComplete, URL: "https://checkout.stripe.com/c/pay/cs_1"},
		},
		{
			name:    "expired session rejected",
			session: &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusExpired},
		},
		{
			name:    "missing url",
			session: &stripe.CheckoutSession{ID: "cs_1", Status: stripe.CheckoutSessionStatusOpen},
		},
		{
			name: "lookup failure",
			err:  errors.New("no such checkout.session"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &openRecorder{}
			sessions := &fakeSessions{session: tt.session, err: tt.err}
			r := NewRedirector(Config{Sessions: sessions, Opener: rec.open})

			err := r.RedirectToSession(context.Background(), "cs_1")

			assert.Equal(t, []string{"cs_1"}, sessions.ids)
			if tt.wantOpened {
				require.NoError(t, err)
				assert.Equal(t, []string{tt.session.URL}, rec.opened)
				return
			}
			assert.ErrorIs(t, err, storefront.ErrRedirect)
			assert.Empty(t, rec.opened)
		})
	}
}

func TestRedirectToSession_WithoutKey(t *testing.T) {
	r := NewRedirector(Config{Opener: (&openRecorder{}).open})

	err := r.RedirectToSession(context.Background(), "cs_1")

	assert.ErrorIs(t, err, storefront.ErrRedirect)
	assert.ErrorIs(t, err, storefront.ErrConfiguration)
}

func TestRedirectToSession_PublishableKey(t *testing.T) {
	r := NewRedirector(Config{APIKey: "pk_test_123", Opener: (&openRecorder{}).open})

	err := r.RedirectToSession(context.Background(), "cs_1")

	assert.ErrorIs(t, err, storefront.ErrConfiguration)
}
