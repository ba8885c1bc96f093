package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

type fakeRedirector struct {
	urls     []string
	sessions []string
	err      error
}

func (r *fakeRedirector) RedirectToURL(_ context.Context, url string) error {
	r.urls = append(r.urls, url)
	return r.err
}

func (r *fakeRedirector) RedirectToSession(_ context.Context, sessionID string) error {
	r.sessions = append(r.sessions, sessionID)
	return r.err
}

type countingMetrics struct {
	storefront.NoopMetrics
	outcomes []string
}

func (m *countingMetrics) RecordCheckout(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func signedInStore() *storefront.Store {
	store := storefront.NewStore([]string{"rig_tools"})
	store.SetIdentity(&storefront.Identity{UID: "user123", Email: "a@example.com"})
	return store
}

func newBackend(t *testing.T, status int, body string, calls *int32, got *Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{Redirector: &fakeRedirector{}}); !errors.Is(err, storefront.ErrConfiguration) {
		t.Errorf("nil store error = %v", err)
	}
	if _, err := New(signedInStore(), Config{}); !errors.Is(err, storefront.ErrConfiguration) {
		t.Errorf("nil redirector error = %v", err)
	}
}

func TestInitiate_RequiresIdentity(t *testing.T) {
	var calls int32
	srv := newBackend(t, http.StatusOK, `{"sessionId":"cs_1"}`, &calls, nil)
	redirector := &fakeRedirector{}
	w, err := New(storefront.NewStore(nil), Config{WebhookURL: srv.URL, PriceID: "price_1", Redirector: redirector})
	if err != nil {
		t.Fatal(err)
	}

	_, err = w.Initiate(context.Background(), "rig_tools")

	if !errors.Is(err, storefront.ErrRequiresAuthentication) {
		t.Fatalf("error = %v, want ErrRequiresAuthentication", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("backend called %d times, want 0", calls)
	}
	if len(redirector.urls)+len(redirector.sessions) != 0 {
		t.Error("redirector must not be called")
	}
}

func TestInitiate_MissingConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		setting string
	}{
		{"missing price", Config{WebhookURL: "http://127.0.0.1:1"}, "subscription price"},
		{"missing webhook", Config{PriceID: "price_1"}, "checkout webhook URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Redirector = &fakeRedirector{}
			w, err := New(signedInStore(), tt.config)
			if err != nil {
				t.Fatal(err)
			}

			_, err = w.Initiate(context.Background(), "rig_tools")

			var ce *storefront.ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want ConfigurationError", err)
			}
			if ce.Setting != tt.setting {
				t.Errorf("Setting = %q, want %q", ce.Setting, tt.setting)
			}
		})
	}
}

func TestInitiate_SendsRequestAndRedirectsToSession(t *testing.T) {
	var calls int32
	var got Request
	srv := newBackend(t, http.StatusOK, `{"sessionId":"cs_123"}`, &calls, &got)
	redirector := &fakeRedirector{}
	metrics := &countingMetrics{}
	w, _ := New(signedInStore(), Config{WebhookURL: srv.URL, PriceID: "price_1", Redirector: redirector, Metrics: metrics})

	res, err := w.Initiate(context.Background(), "rig_tools")
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	want := Request{
		PriceID:      "price_1",
		ProductID:    "rig_tools",
		UserID:       "user123",
		UserEmail:    "a@example.com",
		Mode:         "subscription",
		BillingModel: "monthly_all_access",
	}
	if got != want {
		t.Errorf("request = %+v, want %+v", got, want)
	}
	if res.Kind != ResolvedSessionID || res.SessionID != "cs_123" {
		t.Errorf("resolution = %+v", res)
	}
	if len(redirector.sessions) != 1 || redirector.sessions[0] != "cs_123" {
		t.Errorf("sessions = %v", redirector.sessions)
	}
	if len(metrics.outcomes) != 1 || metrics.outcomes[0] != "session" {
		t.Errorf("outcomes = %v", metrics.outcomes)
	}
}

func TestInitiate_PrefersURL(t *testing.T) {
	var calls int32
	srv := newBackend(t, http.StatusOK, `{"sessionId":"cs_1","url":"https://checkout.stripe.com/c/pay/cs_1"}`, &calls, nil)
	redirector := &fakeRedirector{}
	w, _ := New(signedInStore(), Config{WebhookURL: srv.URL, PriceID: "price_1", Redirector: redirector})

	res, err := w.Initiate(context.Background(), "rig_tools")
	if err != nil {
		t.Fatal(err)
	}

	if res.Kind != ResolvedURL {
		t.Errorf("Kind = %v, want url", res.Kind)
	}
	if len(redirector.urls) != 1 || len(redirector.sessions) != 0 {
		t.Errorf("urls = %v, sessions = %v", redirector.urls, redirector.sessions)
	}
}

func TestInitiate_BackendError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"message from body", `{"message":"Price not found"}`, "Price not found"},
		{"generic fallback", `oops`, "Failed to create checkout session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := newBackend(t, http.StatusBadRequest, tt.body, &calls, nil)
			redirector := &fakeRedirector{}
			w, _ := New(signedInStore(), Config{WebhookURL: srv.URL, PriceID: "price_1", Redirector: redirector})

			_, err := w.Initiate(context.Background(), "rig_tools")

			var ce *storefront.CheckoutSessionError
			if !errors.As(err, &ce) {
				t.Fatalf("error = %v, want CheckoutSessionError", err)
			}
			if ce.StatusCode != http.StatusBadRequest || ce.Message != tt.wantMsg {
				t.Errorf("error = %+v", ce)
			}
			if !errors.Is(err, storefront.ErrCheckoutSession) {
				t.Error("expected ErrCheckoutSession")
			}
			if len(redirector.urls)+len(redirector.sessions) != 0 {
				t.Error("redirector must not be called")
			}
		})
	}
}

func TestInitiate_MalformedResponse(t *testing.T) {
	for _, body := range []string{`{}`, `{"ok":true}`, `not json`} {
		t.Run(body, func(t *testing.T) {
			var calls int32
			srv := newBackend(t, http.StatusOK, body, &calls, nil)
			w, _ := New(signedInStore(), Config{WebhookURL: srv.URL, PriceID: "price_1", Redirector: &fakeRedirector{}})

			_, err := w.Initiate(context.Background(), "rig_tools")

			if !errors.Is(err, storefront.ErrMalformedCheckoutResponse) {
				t.Errorf("error = %v, want ErrMalformedCheckoutResponse", err)
			}
		})
	}
}

func TestInitiate_RedirectFailure(t *testing.T) {
	var calls int32
	srv := newBackend(t, http.StatusOK, `{"sessionId":"cs_1"}`, &calls, nil)
	cause := errors.New("session expired")
	w, _ := New(signedInStore(), Config{WebhookURL: srv.URL, PriceID: "price_1", Redirector: &fakeRedirector{err: cause}})

	_, err := w.Initiate(context.Background(), "rig_tools")

	var re *storefront.RedirectError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want RedirectError", err)
	}
	if !errors.Is(err, cause) || !errors.Is(err, storefront.ErrRedirect) {
		t.Errorf("error chain = %v", err)
	}
}

func TestInitiate_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	w, _ := New(signedInStore(), Config{WebhookURL: url, PriceID: "price_1", Redirector: &fakeRedirector{}})

	_, err := w.Initiate(context.Background(), "rig_tools")

	if !errors.Is(err, storefront.ErrCheckoutSession) {
		t.Errorf("error = %v, want ErrCheckoutSession", err)
	}
}
