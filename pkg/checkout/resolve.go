package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mihaimyh/storefront/pkg/storefront"
)

const (
	// SessionIDPrefix marks a Stripe Checkout Session id
	SessionIDPrefix = "cs_"

	// CheckoutHost identifies a hosted checkout URL
	CheckoutHost = "checkout.stripe.com"
)

// ResolutionKind tags the outcome of resolving a checkout response.
type ResolutionKind int

const (
	// ResolvedNeither means the response carried no usable redirect target
	ResolvedNeither ResolutionKind = iota
	// ResolvedURL means a hosted checkout URL was found
	ResolvedURL
	// ResolvedSessionID means only a session id was found
	ResolvedSessionID
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolvedURL:
		return "url"
	case ResolvedSessionID:
		return "session"
	default:
		return "neither"
	}
}

// Resolution is the redirect target extracted from a checkout response.
// URL is preferred over SessionID when both are present.
type Resolution struct {
	Kind      ResolutionKind
	URL       string
	SessionID string
}

// DecodeResponse parses a JSON checkout response and resolves it.
func DecodeResponse(data []byte) (Resolution, error) {
	var body interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", storefront.ErrMalformedCheckoutResponse, err)
	}
	return ResolveResponse(body), nil
}

// ResolveResponse walks an arbitrarily nested response (objects, arrays,
// strings) and keeps the first session id and the first checkout URL it meets.
//
// Strings prefixed with SessionIDPrefix are session ids and strings containing
// CheckoutHost are URLs. In objects, a string "sessionId", an "id" carrying the
// prefix and a "url" containing the host are taken as well. Object keys are
// visited in sorted order so the result does not depend on map iteration.
func ResolveResponse(body interface{}) Resolution {
	var sessionID, checkoutURL string

	stack := []interface{}{body}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch v := current.(type) {
		case nil:
			continue
		case string:
			if sessionID == "" && strings.HasPrefix(v, SessionIDPrefix) {
				sessionID = v
			} else if checkoutURL == "" && strings.Contains(v, CheckoutHost) {
				checkoutURL = v
			}
		case []interface{}:
			stack = append(stack, v...)
		case map[string]interface{}:
			if s, ok := v["sessionId"].(string); ok && sessionID == "" && s != "" {
				sessionID = s
			}
			if s, ok := v["id"].(string); ok && sessionID == "" && strings.HasPrefix(s, SessionIDPrefix) {
				sessionID = s
			}
			if s, ok := v["url"].(string); ok && checkoutURL == "" && strings.Contains(s, CheckoutHost) {
				checkoutURL = s
			}

			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Sort(sort.Reverse(sort.StringSlice(keys)))
			for _, k := range keys {
				stack = append(stack, v[k])
			}
		}
	}

	switch {
	case checkoutURL != "":
		return Resolution{Kind: ResolvedURL, URL: checkoutURL, SessionID: sessionID}
	case sessionID != "":
		return Resolution{Kind: ResolvedSessionID, SessionID: sessionID}
	default:
		return Resolution{Kind: ResolvedNeither}
	}
}
