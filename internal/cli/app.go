package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mihaimyh/storefront/pkg/checkout"
	"github.com/mihaimyh/storefront/pkg/delivery"
	"github.com/mihaimyh/storefront/pkg/identity/firebase"
	"github.com/mihaimyh/storefront/pkg/storefront"
)

// Authenticator is the session surface used by the CLI. *storefront.Session satisfies it.
type Authenticator interface {
	SignInWithProvider(ctx context.Context) error
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUpWithPassword(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
}

// Purchaser starts a checkout. *checkout.Workflow satisfies it.
type Purchaser interface {
	Initiate(ctx context.Context, productID string) (checkout.Resolution, error)
}

// Downloader fetches the bundle. *delivery.Workflow satisfies it.
type Downloader interface {
	Download(ctx context.Context) (*delivery.Result, error)
}

// StoreView is the read side of the entitlement store.
type StoreView interface {
	Current() storefront.Snapshot
	Subscribe(obs storefront.Observer) (unsubscribe func())
}

// Deps are the collaborators of an App.
type Deps struct {
	Store    StoreView
	Auth     Authenticator
	Purchase Purchaser
	Delivery Downloader
	In       io.Reader
	Out      io.Writer
	Logger   storefront.Logger

	// Refresh re-reads the subscription record of the signed-in identity (optional)
	Refresh func(ctx context.Context) error
}

// App is the interactive storefront client.
type App struct {
	store    StoreView
	auth     Authenticator
	purchase Purchaser
	delivery Downloader
	refresh  func(ctx context.Context) error
	logger   storefront.Logger

	reader *bufio.Reader
	outMu  sync.Mutex
	out    io.Writer

	controlsMu sync.Mutex
	buy        map[string]*storefront.Control
	download   *storefront.Control
}

// NewApp creates an App. Every collaborator except Logger is required.
func NewApp(d Deps) (*App, error) {
	switch {
	case d.Store == nil:
		return nil, &storefront.ConfigurationError{Setting: "entitlement store"}
	case d.Auth == nil:
		return nil, &storefront.ConfigurationError{Setting: "session"}
	case d.Purchase == nil:
		return nil, &storefront.ConfigurationError{Setting: "purchase workflow"}
	case d.Delivery == nil:
		return nil, &storefront.ConfigurationError{Setting: "delivery workflow"}
	case d.In == nil || d.Out == nil:
		return nil, errors.New("cli: input and output are required")
	}
	return &App{
		store:    d.Store,
		auth:     d.Auth,
		purchase: d.Purchase,
		delivery: d.Delivery,
		refresh:  d.Refresh,
		logger:   storefront.LoggerOrNoop(d.Logger),
		reader:   bufio.NewReader(d.In),
		out:      d.Out,
		buy:      make(map[string]*storefront.Control),
		download: storefront.NewControl(storefront.LabelDownloadBundle),
	}, nil
}

// Run renders store changes and runs the REPL until the user leaves or ctx is done.
func (a *App) Run(ctx context.Context) error {
	stop := a.Watch()
	defer stop()

	a.println("Storefront. Type 'help' for commands.")
	runREPL(ctx, a, a.prompt, a.reader)
	return nil
}

// GoogleCredential asks the user for a Google ID token. It is used as the
// firebase.CredentialFunc of the identity provider.
func (a *App) GoogleCredential(_ context.Context) (firebase.Credential, error) {
	token, err := GetSimpleText(a.reader, "Google ID token", a.out)
	if err != nil {
		return firebase.Credential{}, err
	}
	if token == "" {
		return firebase.Credential{}, errors.New("no token entered")
	}
	return firebase.Credential{ProviderID: firebase.GoogleProviderID, IDToken: token}, nil
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) isLoggedIn() bool {
	return a.store.Current().SignedIn()
}

func (a *App) prompt() string {
	snap := a.store.Current()
	if !snap.SignedIn() {
		return "storefront> "
	}
	return fmt.Sprintf("storefront (%s)> ", accountLabel(snap))
}

func (a *App) buyControl(productID string) *storefront.Control {
	a.controlsMu.Lock()
	defer a.controlsMu.Unlock()
	c, ok := a.buy[productID]
	if !ok {
		c = storefront.NewControl(storefront.LabelSubscribe)
		a.buy[productID] = c
	}
	return c
}

// Status prints the identity, subscription and owned products.
func (a *App) Status(_ context.Context) error {
	snap := a.store.Current()
	if !snap.SignedIn() {
		a.println("Not signed in.")
		return nil
	}
	a.println("Signed in as", accountLabel(snap))
	if !snap.Identity.EmailVerified {
		a.println("Email not verified.")
	}

	view := storefront.BuildView(snap)
	switch {
	case view.Pending:
		a.println("Subscription: checking...")
	case view.Subscription == nil:
		a.println("Subscription: none")
	default:
		a.println("Subscription:", describeBadge(view.Subscription))
	}
	if view.Download.Visible {
		a.println("Owned:", strings.Join(view.Owned, ", "))
	}
	return nil
}

// Products lists the catalog with the buy state of each product.
func (a *App) Products(_ context.Context) error {
	snap := a.store.Current()
	view := storefront.BuildView(snap)
	if len(snap.Catalog) == 0 {
		a.println("No products.")
		return nil
	}
	for _, id := range snap.Catalog {
		state := "sign in to buy"
		switch {
		case snap.Owned.Has(id):
			state = "owned"
		case view.Buy[id].Visible:
			label, enabled := a.buyControl(id).State()
			state = label
			if !enabled {
				state += " (busy)"
			}
		}
		a.println(fmt.Sprintf("  %-24s %s", id, state))
	}
	return nil
}

// View prints the rendered view model as JSON.
func (a *App) View(_ context.Context) error {
	data, err := json.MarshalIndent(storefront.BuildView(a.store.Current()), "", "  ")
	if err != nil {
		a.report(err)
		return err
	}
	a.println(string(data))
	return nil
}

// Login signs in with email and password, or through Google when method is "google".
func (a *App) Login(ctx context.Context, method string) error {
	if a.isLoggedIn() {
		a.println("Already signed in.")
		return nil
	}

	var err error
	switch method {
	case "google":
		err = a.auth.SignInWithProvider(ctx)
	case "":
		var email, password string
		email, password, err = a.credentials()
		if err == nil {
			err = a.auth.SignInWithPassword(ctx, email, password)
		}
	default:
		a.println("Unknown sign-in method:", method)
		return nil
	}
	if err != nil {
		a.report(err)
		return err
	}
	return nil
}

// Signup creates an account with email and password.
func (a *App) Signup(ctx context.Context) error {
	if a.isLoggedIn() {
		a.println("Already signed in.")
		return nil
	}
	email, password, err := a.credentials()
	if err == nil {
		err = a.auth.SignUpWithPassword(ctx, email, password)
	}
	if err != nil {
		a.report(err)
		return err
	}
	a.println("Account created! Please check your email to verify your account.")
	return nil
}

// Logout signs out.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.SignOut(ctx); err != nil {
		a.report(err)
		return err
	}
	return nil
}

// Buy starts a checkout for productID.
func (a *App) Buy(ctx context.Context, productID string) error {
	if productID == "" {
		a.println("Usage: buy <product-id>")
		return nil
	}
	snap := a.store.Current()
	if !inCatalog(snap.Catalog, productID) {
		a.println("Unknown product:", productID)
		return nil
	}
	if snap.Owned.Has(productID) {
		a.println("You already have access to", productID)
		return nil
	}

	control := a.buyControl(productID)
	if !control.Begin(storefront.LabelRedirecting) {
		a.println("Checkout already in progress.")
		return nil
	}
	defer control.Reset()
	a.println(storefront.LabelRedirecting)

	res, err := a.purchase.Initiate(ctx, productID)
	if err != nil {
		a.report(err)
		return err
	}
	a.logger.Debug("checkout opened",
		storefront.Field{Key: "product_id", Value: productID},
		storefront.Field{Key: "kind", Value: res.Kind.String()},
	)
	a.println("Checkout opened in your browser. Your subscription will appear here once payment completes.")
	return nil
}

// Download saves the bundle.
func (a *App) Download(ctx context.Context) error {
	if !a.download.Begin(storefront.LabelDownloading) {
		a.println("Download already in progress.")
		return nil
	}
	defer a.download.Reset()
	a.println(storefront.LabelDownloading)

	res, err := a.delivery.Download(ctx)
	if err != nil {
		a.report(err)
		return err
	}
	a.println(fmt.Sprintf("Saved %s (%d bytes)", res.Path, res.Bytes))
	return nil
}

// Refresh re-reads the subscription record, e.g. after a checkout completes.
func (a *App) Refresh(ctx context.Context) error {
	if a.refresh == nil {
		a.println("Refresh is not available.")
		return nil
	}
	if !a.isLoggedIn() {
		a.report(storefront.ErrRequiresAuthentication)
		return storefront.ErrRequiresAuthentication
	}
	if err := a.refresh(ctx); err != nil {
		if !errors.Is(err, storefront.ErrSync) {
			a.report(err)
			return err
		}
		// the store was reconciled regardless; sync failures are only logged
		a.logger.Debug("refresh failed", storefront.Field{Key: "error", Value: err})
	}
	return a.Status(ctx)
}

func (a *App) credentials() (email, password string, err error) {
	email, err = GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return "", "", err
	}
	password, err = GetPassword(a.out)
	if err != nil {
		return "", "", err
	}
	return email, password, nil
}

// report shows err to the user.
func (a *App) report(err error) {
	var pe *storefront.ProviderError
	switch {
	case errors.Is(err, storefront.ErrSessionExpired):
		a.println("Your session has expired. Please sign in again (type 'login').")
	case errors.Is(err, storefront.ErrRequiresAuthentication):
		a.println("Please sign in first (type 'login').")
	case errors.Is(err, storefront.ErrNotEntitled):
		a.println("You need an active subscription to download the bundle.")
	case errors.Is(err, storefront.ErrConfiguration):
		a.println("Configuration error:", err)
	case errors.As(err, &pe):
		a.println(pe.Message)
	default:
		a.println("Error:", err)
	}
}

func accountLabel(snap storefront.Snapshot) string {
	return storefront.BuildView(snap).Account.Label
}

func describeBadge(b *storefront.SubscriptionBadge) string {
	s := string(b.Status)
	if b.CurrentPeriodEnd != nil {
		if b.CancelAtPeriodEnd {
			s += ", ends " + b.CurrentPeriodEnd.Format("2006-01-02")
		} else {
			s += ", renews " + b.CurrentPeriodEnd.Format("2006-01-02")
		}
	}
	return s
}

func inCatalog(catalog []string, productID string) bool {
	for _, id := range catalog {
		if id == productID {
			return true
		}
	}
	return false
}
