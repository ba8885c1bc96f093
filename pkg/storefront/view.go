package storefront

import (
	"sync"
	"time"
)

// Default labels of the interactive elements.
const (
	LabelSubscribe      = "Subscribe"
	LabelRedirecting    = "Redirecting..."
	LabelDownloadBundle = "Download Bundle"
	LabelDownloading    = "Downloading..."
	LabelAccount        = "Account"
)

// ButtonView is the rendered state of one button.
type ButtonView struct {
	Visible bool   `json:"visible"`
	Label   string `json:"label"`
}

// SubscriptionBadge describes the subscription for display.
type SubscriptionBadge struct {
	Status            Status     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
}

// View is what a renderer shows for a snapshot.
type View struct {
	Login        ButtonView         `json:"login"`
	Account      ButtonView         `json:"account"`
	Logout       ButtonView         `json:"logout"`
	Download     ButtonView         `json:"download"`
	Pending      bool               `json:"pending"`
	Subscription *SubscriptionBadge `json:"subscription,omitempty"`

	// Buy holds one button per catalog product, keyed by product id
	Buy map[string]ButtonView `json:"buy"`

	// Owned lists product ids to mark as owned
	Owned []string `json:"owned"`
}

// BuildView derives the rendered state from a snapshot.
//
// Buy buttons are hidden for signed-out visitors and for owned products. The
// bundle download is shown only to a signed-in identity that owns something.
func BuildView(snap Snapshot) View {
	signedIn := snap.SignedIn()

	v := View{
		Login:    ButtonView{Visible: !signedIn, Label: "Sign in"},
		Account:  ButtonView{Visible: signedIn, Label: LabelAccount},
		Logout:   ButtonView{Visible: signedIn, Label: "Sign out"},
		Download: ButtonView{Visible: snap.Entitled(), Label: LabelDownloadBundle},
		Pending:  snap.Pending(),
		Buy:      make(map[string]ButtonView, len(snap.Catalog)),
		Owned:    snap.Owned.IDs(),
	}

	if signedIn && snap.Identity.Email != "" {
		v.Account.Label = snap.Identity.Email
	}

	for _, productID := range snap.Catalog {
		v.Buy[productID] = ButtonView{
			Visible: signedIn && !snap.Owned.Has(productID),
			Label:   LabelSubscribe,
		}
	}

	if ent := snap.Entitlement; signedIn && ent != nil && ent.Status != StatusAbsent {
		badge := &SubscriptionBadge{Status: ent.Status}
		if ent.CurrentPeriodEnd != nil {
			t := *ent.CurrentPeriodEnd
			badge.CurrentPeriodEnd = &t
		}
		if ent.CancelAtPeriodEnd != nil {
			badge.CancelAtPeriodEnd = *ent.CancelAtPeriodEnd
		}
		v.Subscription = badge
	}

	return v
}

// Control is an interactive element that is disabled while its action runs.
type Control struct {
	mu           sync.Mutex
	defaultLabel string
	label        string
	disabled     bool
}

// NewControl creates an enabled control with the given default label.
func NewControl(defaultLabel string) *Control {
	return &Control{defaultLabel: defaultLabel, label: defaultLabel}
}

// Begin disables the control and shows busyLabel. It returns false, leaving
// the control untouched, when the control is already disabled.
func (c *Control) Begin(busyLabel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled {
		return false
	}
	c.disabled = true
	c.label = busyLabel
	return true
}

// Reset returns the control to its enabled, default-labeled state.
func (c *Control) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = false
	c.label = c.defaultLabel
}

// State returns the current label and whether the control is enabled.
func (c *Control) State() (label string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.label, !c.disabled
}
