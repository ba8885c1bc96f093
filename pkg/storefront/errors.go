package storefront

import (
	"errors"
	"fmt"
)

var (
	// ErrRequiresAuthentication is returned when an action needs a signed-in identity.
	// It is a precondition signal, not a failed remote call.
	ErrRequiresAuthentication = errors.New("sign-in required")

	// ErrSessionExpired is returned when the ID token expired and cannot be
	// renewed. It wraps ErrRequiresAuthentication.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrRequiresAuthentication)

	// ErrConfiguration is returned when a required setting is missing
	ErrConfiguration = errors.New("storefront not configured")

	// ErrProvider is returned when the identity provider rejects an operation
	ErrProvider = errors.New("identity provider error")

	// ErrRecordNotFound is returned by a RecordSource when the user has no subscription record
	ErrRecordNotFound = errors.New("subscription record not found")

	// ErrSync is returned when reconciliation could not fetch the subscription record
	ErrSync = errors.New("entitlement sync failed")

	// ErrCheckoutSession is returned when the checkout backend reports a failure
	ErrCheckoutSession = errors.New("checkout session error")

	// ErrMalformedCheckoutResponse is returned when the checkout response carries
	// neither a checkout URL nor a session id
	ErrMalformedCheckoutResponse = errors.New("no session ID returned from server")

	// ErrRedirect is returned when the payment processor redirect fails
	ErrRedirect = errors.New("checkout redirect failed")

	// ErrDelivery is returned when the delivery backend reports a failure
	ErrDelivery = errors.New("delivery error")

	// ErrNotEntitled is returned when a delivery is requested without an active subscription
	ErrNotEntitled = errors.New("no active subscription")
)

// ProviderError carries a provider-specific code and a message fit for display.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("identity provider error (%s)", e.Code)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrProvider, e.Err}
	}
	return []error{ErrProvider}
}

// ConfigurationError names the missing setting. It is fatal and never retried.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// CheckoutSessionError is returned for a non-success response from the checkout backend.
type CheckoutSessionError struct {
	StatusCode int
	Message    string
}

func (e *CheckoutSessionError) Error() string {
	return e.Message
}

func (e *CheckoutSessionError) Unwrap() error { return ErrCheckoutSession }

// DeliveryError is returned for a non-success response from the delivery backend.
type DeliveryError struct {
	StatusCode int
	Message    string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

func (e *DeliveryError) Unwrap() error { return ErrDelivery }

// RedirectError wraps a failure reported by the payment processor redirect.
type RedirectError struct {
	Err error
}

func (e *RedirectError) Error() string {
	if e.Err == nil {
		return ErrRedirect.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRedirect.Error(), e.Err.Error())
}

func (e *RedirectError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRedirect, e.Err}
	}
	return []error{ErrRedirect}
}
