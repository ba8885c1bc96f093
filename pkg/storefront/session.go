package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const minPasswordLength = 6

// Provider error codes produced by this package. Identity providers may return others.
const (
	CodeMissingFields       = "auth/missing-fields"
	CodeWeakPassword        = "auth/weak-password"
	CodeEmailAlreadyInUse   = "auth/email-already-in-use"
	CodeOperationNotAllowed = "auth/operation-not-allowed"
	CodeInternal            = "auth/internal-error"
)

// IdentityProvider is the hosted identity service. Implementations are stateless
// with respect to the session: they return the identity produced by each operation
// and the Session tracks which one is current.
type IdentityProvider interface {
	// SignInWithProvider signs in through a federated provider (e.g. Google).
	SignInWithProvider(ctx context.Context) (*Identity, error)

	// SignInWithPassword signs in with email and password.
	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)

	// SignUpWithPassword creates an account and returns its signed-in identity.
	SignUpWithPassword(ctx context.Context, email, password string) (*Identity, error)

	// SendVerificationEmail asks the provider to email a verification link.
	SendVerificationEmail(ctx context.Context, id *Identity) error

	// SignOut ends the provider session for id.
	SignOut(ctx context.Context, id *Identity) error
}

// TokenRefresher is implemented by identity providers that can renew an
// expired ID token without a new sign-in.
type TokenRefresher interface {
	RefreshIDToken(ctx context.Context, id *Identity) (*Identity, error)
}

// ChangeHandler is invoked with the current identity (nil when signed out).
type ChangeHandler func(ctx context.Context, id *Identity)

// Session adapts an IdentityProvider into identity transitions.
type Session struct {
	provider IdentityProvider
	logger   Logger

	now      func() time.Time

	// refreshMu serializes token renewals
	refreshMu sync.Mutex

	// emitMu delivers transitions to handlers one at a time, in emission order
	emitMu sync.Mutex

	mu            sync.RWMutex
	current       *Identity
	handlers      map[uint64]ChangeHandler
	handlerOrder  []uint64
	nextHandlerID uint64
}

// NewSession creates a session over provider. The session starts signed out.
func NewSession(provider IdentityProvider, logger Logger) (*Session, error) {
	if provider == nil {
		return nil, &ConfigurationError{Setting: "identity provider"}
	}
	return &Session{
		provider: provider,
		logger:   LoggerOrNoop(logger),
		now:      time.Now,
		handlers: make(map[uint64]ChangeHandler),
	}, nil
}

// Current returns the current identity, or nil.
func (s *Session) Current() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// IDToken returns a bearer token for the current identity, renewing it through
// the provider when it has expired. The renewal is not a transition: handlers
// are not invoked and the UID is unchanged. It returns ErrRequiresAuthentication
// when signed out and ErrSessionExpired when the token cannot be renewed.
func (s *Session) IDToken(ctx context.Context) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	id := s.Current()
	if id == nil {
		return "", ErrRequiresAuthentication
	}
	if !id.TokenExpired(s.now()) {
		return id.IDToken, nil
	}

	refresher, ok := s.provider.(TokenRefresher)
	if !ok || id.RefreshToken == "" {
		return "", ErrSessionExpired
	}
	fresh, err := refresher.RefreshIDToken(ctx, id)
	if err != nil {
		s.logger.Warn("token refresh failed", Field{Key: "uid", Value: id.UID}, Field{Key: "error", Value: err})
		return "", fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}
	if fresh == nil || fresh.UID != id.UID || fresh.IDToken == "" {
		return "", ErrSessionExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.UID != id.UID {
		// signed out or switched while renewing
		return "", ErrRequiresAuthentication
	}
	s.current = fresh.Clone()
	s.logger.Debug("token refreshed", Field{Key: "uid", Value: id.UID})
	return fresh.IDToken, nil
}

// OnChange registers h. It is invoked once immediately with the current identity
// and again on every subsequent transition. The returned function removes it.
func (s *Session) OnChange(ctx context.Context, h ChangeHandler) (remove func()) {
	if h == nil {
		return func() {}
	}

	s.emitMu.Lock()
	s.mu.Lock()
	id := s.nextHandlerID
	s.nextHandlerID++
	s.handlers[id] = h
	s.handlerOrder = append(s.handlerOrder, id)
	current := s.current.Clone()
	s.mu.Unlock()
	h(ctx, current)
	s.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.handlers, id)
			for i, hid := range s.handlerOrder {
				if hid == id {
					s.handlerOrder = append(s.handlerOrder[:i], s.handlerOrder[i+1:]...)
					break
				}
			}
		})
	}
}

// SignInWithProvider signs in through the federated provider.
func (s *Session) SignInWithProvider(ctx context.Context) error {
	id, err := s.provider.SignInWithProvider(ctx)
	if err != nil {
		s.logger.Error("provider sign-in failed", Field{Key: "error", Value: err})
		return asProviderError(err)
	}
	s.transition(ctx, id)
	return nil
}

// SignInWithPassword signs in with email and password.
func (s *Session) SignInWithPassword(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return &ProviderError{Code: CodeMissingFields, Message: "Please fill in all fields"}
	}

	id, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.logger.Error("email sign-in failed", Field{Key: "error", Value: err})
		return asProviderError(err)
	}
	s.transition(ctx, id)
	return nil
}

// SignUpWithPassword creates an account and sends the verification email.
// The new account is signed in, but it carries no entitlement until the
// record store says otherwise.
func (s *Session) SignUpWithPassword(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return &ProviderError{Code: CodeMissingFields, Message: "Please fill in all fields"}
	}
	if len(password) < minPasswordLength {
		return &ProviderError{Code: CodeWeakPassword, Message: "Password must be at least 6 characters"}
	}

	id, err := s.provider.SignUpWithPassword(ctx, email, password)
	if err != nil {
		s.logger.Error("email sign-up failed", Field{Key: "error", Value: err})
		return signUpError(asProviderError(err))
	}
	s.transition(ctx, id)

	if err := s.provider.SendVerificationEmail(ctx, id); err != nil {
		s.logger.Error("verification email failed", Field{Key: "error", Value: err})
		return asProviderError(err)
	}
	return nil
}

// SignOut ends the session. The identity becomes absent even when the provider
// call fails, since no provider state outlives the process.
func (s *Session) SignOut(ctx context.Context) error {
	current := s.Current()
	var err error
	if current != nil {
		err = s.provider.SignOut(ctx, current)
		if err != nil {
			s.logger.Error("sign-out failed", Field{Key: "error", Value: err})
		}
	}
	s.transition(ctx, nil)
	if err != nil {
		return asProviderError(err)
	}
	return nil
}

func (s *Session) transition(ctx context.Context, id *Identity) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.current = id.Clone()
	handlers := make([]ChangeHandler, 0, len(s.handlerOrder))
	for _, hid := range s.handlerOrder {
		handlers = append(handlers, s.handlers[hid])
	}
	s.mu.Unlock()

	if id != nil {
		s.logger.Info("identity changed", Field{Key: "uid", Value: id.UID})
	} else {
		s.logger.Info("identity cleared")
	}
	for _, h := range handlers {
		h(ctx, id.Clone())
	}
}

func asProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Code: CodeInternal, Message: err.Error(), Err: err}
}

func signUpError(pe *ProviderError) *ProviderError {
	switch pe.Code {
	case CodeEmailAlreadyInUse:
		return &ProviderError{Code: pe.Code, Message: "This email is already registered. Please sign in instead.", Err: pe.Err}
	case CodeWeakPassword:
		return &ProviderError{Code: pe.Code, Message: "Password is too weak. Please use at least 6 characters.", Err: pe.Err}
	}
	if pe.Message == "" {
		return &ProviderError{Code: pe.Code, Message: "Failed to create account", Err: pe.Err}
	}
	return pe
}
