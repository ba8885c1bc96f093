// Package firebase implements storefront.IdentityProvider over the Firebase
// Authentication REST API (Identity Toolkit).
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mihaimyh/storefront/pkg/internal"
	"github.com/mihaimyh/storefront/pkg/storefront"
)

const (
	// DefaultBaseURL is the Identity Toolkit v1 endpoint
	DefaultBaseURL = "https://identitytoolkit.googleapis.com/v1"

	// DefaultTokenURL is the Secure Token v1 endpoint used to renew ID tokens
	DefaultTokenURL = "https://securetoken.googleapis.com/v1"

	// GoogleProviderID is the federated provider id for Google sign-in
	GoogleProviderID = "google.com"

	defaultHTTPTimeout = 10 * time.Second
	defaultRequestURI  = "http://localhost"
	maxResponseSize    = 1 << 20
)

// ErrNoCredential is returned by SignInWithProvider when no federated
// credential source is configured.
var ErrNoCredential = errors.New("federated sign-in is not configured")

// Credential is a token issued by a federated provider (e.g. a Google ID token).
type Credential struct {
	// ProviderID such as GoogleProviderID
	ProviderID string

	IDToken     string
	AccessToken string
}

// CredentialFunc obtains a federated credential, typically through an
// interactive OAuth flow.
type CredentialFunc func(ctx context.Context) (Credential, error)

// Config configures the Firebase provider.
type Config struct {
	// APIKey is the Firebase web API key (required)
	APIKey string

	// BaseURL overrides the Identity Toolkit endpoint. Default: DefaultBaseURL.
	BaseURL string

	// TokenURL overrides the Secure Token endpoint. Default: DefaultTokenURL.
	TokenURL string

	// Credential supplies federated credentials for SignInWithProvider
	Credential CredentialFunc

	// RequestURI is sent as requestUri on federated sign-in. Default: http://localhost.
	RequestURI string

	// HTTPClient is an optional HTTP client. If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	Logger storefront.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &storefront.ConfigurationError{Setting: "firebase API key"}
	}
	return nil
}

// Provider talks to Firebase Authentication.
type Provider struct {
	apiKey     string
	baseURL    string
	tokenURL   string
	credential CredentialFunc
	requestURI string
	httpClient *http.Client
	logger     storefront.Logger
	now        func() time.Time
}

// NewProvider creates a Firebase identity provider.
func NewProvider(config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tokenURL := strings.TrimRight(config.TokenURL, "/")
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	requestURI := config.RequestURI
	if requestURI == "" {
		requestURI = defaultRequestURI
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &Provider{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    baseURL,
		tokenURL:   tokenURL,
		credential: config.Credential,
		requestURI: requestURI,
		httpClient: httpClient,
		logger:     storefront.LoggerOrNoop(config.Logger),
		now:        time.Now,
	}, nil
}

// authResponse covers signInWithPassword, signUp and signInWithIdp.
type authResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
}

// tokenResponse is the Secure Token exchange result.
type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// SignInWithProvider signs in with a federated credential.
func (p *Provider) SignInWithProvider(ctx context.Context) (*storefront.Identity, error) {
	if p.credential == nil {
		return nil, &storefront.ProviderError{
			Code:    storefront.CodeOperationNotAllowed,
			Message: "Federated sign-in is not available.",
			Err:     ErrNoCredential,
		}
	}
	cred, err := p.credential(ctx)
	if err != nil {
		return nil, err
	}
	providerID := cred.ProviderID
	if providerID == "" {
		providerID = GoogleProviderID
	}

	post := url.Values{"providerId": {providerID}}
	if cred.IDToken != "" {
		post.Set("id_token", cred.IDToken)
	}
	if cred.AccessToken != "" {
		post.Set("access_token", cred.AccessToken)
	}

	var resp authResponse
	err = p.call(ctx, "accounts:signInWithIdp", map[string]interface{}{
		"postBody":            post.Encode(),
		"requestUri":          p.requestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.identity(resp)
}

// SignInWithPassword signs in with email and password.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*storefront.Identity, error) {
	var resp authResponse
	err := p.call(ctx, "accounts:signInWithPassword", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.identity(resp)
}

// SignUpWithPassword creates an account and returns its signed-in identity.
func (p *Provider) SignUpWithPassword(ctx context.Context, email, password string) (*storefront.Identity, error) {
	var resp authResponse
	err := p.call(ctx, "accounts:signUp", map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return p.identity(resp)
}

// SendVerificationEmail asks Firebase to email a verification link to id.
func (p *Provider) SendVerificationEmail(ctx context.Context, id *storefront.Identity) error {
	if id == nil || id.IDToken == "" {
		return storefront.ErrRequiresAuthentication
	}
	return p.call(ctx, "accounts:sendOobCode", map[string]interface{}{
		"requestType": "VERIFY_EMAIL",
		"idToken":     id.IDToken,
	}, nil)
}

// RefreshIDToken exchanges the refresh token of id for a new ID token.
func (p *Provider) RefreshIDToken(ctx context.Context, id *storefront.Identity) (*storefront.Identity, error) {
	if id == nil || id.RefreshToken == "" {
		return nil, storefront.ErrSessionExpired
	}

	endpoint := fmt.Sprintf("%s/token?key=%s", p.tokenURL, url.QueryEscape(p.apiKey))
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {id.RefreshToken},
	}
	var resp tokenResponse
	err := p.do("token", func() (*http.Response, error) {
		return internal.PostForm(ctx, p.httpClient, endpoint, form)
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.IDToken == "" || (resp.UserID != "" && resp.UserID != id.UID) {
		return nil, &storefront.ProviderError{
			Code:    storefront.CodeInternal,
			Message: "The identity service returned an unexpected response.",
		}
	}

	fresh := id.Clone()
	fresh.IDToken = resp.IDToken
	if resp.RefreshToken != "" {
		fresh.RefreshToken = resp.RefreshToken
	}
	claims, err := parseIDToken(resp.IDToken)
	if err != nil {
		p.logger.Warn("unreadable id token", storefront.Field{Key: "error", Value: err})
	} else {
		fresh.EmailVerified = fresh.EmailVerified || claims.EmailVerified
	}
	fresh.ExpiresAt = expiry(claims, resp.ExpiresIn, p.now())
	return fresh, nil
}

// SignOut is local for Firebase: ID tokens cannot be revoked by the client,
// they expire on their own.
func (p *Provider) SignOut(_ context.Context, id *storefront.Identity) error {
	if id != nil {
		p.logger.Debug("firebase sign-out", storefront.Field{Key: "uid", Value: id.UID})
	}
	return nil
}

func (p *Provider) identity(resp authResponse) (*storefront.Identity, error) {
	if resp.LocalID == "" {
		return nil, &storefront.ProviderError{
			Code:    storefront.CodeInternal,
			Message: "The identity service returned no user.",
		}
	}

	id := &storefront.Identity{
		UID:           resp.LocalID,
		Email:         resp.Email,
		EmailVerified: resp.EmailVerified,
		IDToken:       resp.IDToken,
		RefreshToken:  resp.RefreshToken,
	}

	var claims *idTokenClaims
	if resp.IDToken != "" {
		c, err := parseIDToken(resp.IDToken)
		if err != nil {
			p.logger.Warn("unreadable id token", storefront.Field{Key: "error", Value: err})
		} else {
			claims = c
			id.EmailVerified = id.EmailVerified || c.EmailVerified
			if id.Email == "" {
				id.Email = c.Email
			}
		}
	}
	id.ExpiresAt = expiry(claims, resp.ExpiresIn, p.now())
	return id, nil
}

func (p *Provider) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	endpoint := fmt.Sprintf("%s/%s?key=%s", p.baseURL, method, url.QueryEscape(p.apiKey))
	return p.do(method, func() (*http.Response, error) {
		return internal.PostJSON(ctx, p.httpClient, endpoint, body, nil)
	}, out)
}

func (p *Provider) do(method string, send func() (*http.Response, error), out interface{}) error {
	resp, err := send()
	if err != nil {
		return &storefront.ProviderError{
			Code:    "auth/network-request-failed",
			Message: "A network error occurred. Please try again.",
			Err:     err,
		}
	}
	defer func() { _ = internal.DrainAndClose(resp.Body) }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &storefront.ProviderError{
			Code:    "auth/network-request-failed",
			Message: "A network error occurred. Please try again.",
			Err:     err,
		}
	}

	if !internal.Success(resp.StatusCode) {
		pe := providerError(data)
		p.logger.Debug("identity toolkit error",
			storefront.Field{Key: "method", Value: method},
			storefront.Field{Key: "status", Value: resp.StatusCode},
			storefront.Field{Key: "code", Value: pe.Code},
		)
		return pe
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &storefront.ProviderError{
			Code:    storefront.CodeInternal,
			Message: "The identity service returned an unexpected response.",
			Err:     err,
		}
	}
	return nil
}
