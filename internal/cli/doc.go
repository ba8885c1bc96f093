// Package cli implements the interactive storefront client.
//
// The REPL reads one command per line and dispatches it to App. App owns the
// interactive controls (one buy control per product and the bundle download
// control) and renders store changes as they arrive.
//
// Commands
//
//	status            show identity, subscription and owned products
//	products          list the catalog with buy state
//	view              print the rendered view as JSON
//	login [google]    sign in with email and password, or with Google
//	signup            create an account and send the verification email
//	logout            sign out
//	buy <product-id>  start checkout in the browser
//	download          download the bundle
//	refresh           re-check the subscription
//	help              list commands
//	exit | quit       leave the program
package cli
