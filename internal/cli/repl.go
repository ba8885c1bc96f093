package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to.
type execIface interface {
	isLoggedIn() bool
	Status(ctx context.Context) error
	Products(ctx context.Context) error
	View(ctx context.Context) error
	Login(ctx context.Context, method string) error
	Signup(ctx context.Context) error
	Logout(ctx context.Context) error
	Buy(ctx context.Context, productID string) error
	Download(ctx context.Context) error
	Refresh(ctx context.Context) error
	println(a ...any)
}

// runREPL reads commands from reader until EOF, "exit"/"quit" or ctx is done.
// Errors returned by handlers are already reported to the user by the handlers.
func runREPL(ctx context.Context, a execIface, prompt func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		a.println(prompt())
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || strings.TrimSpace(line) == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		switch parts[0] {
		case "help":
			if a.isLoggedIn() {
				a.println("Available commands: status, products, view, buy <product-id>, download, refresh, logout, exit")
			} else {
				a.println("Available commands: status, products, view, login [google], signup, exit")
			}

		case "status":
			_ = a.Status(ctx)

		case "products":
			_ = a.Products(ctx)

		case "view":
			_ = a.View(ctx)

		case "login":
			_ = a.Login(ctx, arg)

		case "signup", "register":
			_ = a.Signup(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "buy":
			_ = a.Buy(ctx, arg)

		case "download":
			_ = a.Download(ctx)

		case "refresh":
			_ = a.Refresh(ctx)

		case "exit", "quit":
			a.println("Bye!")
			return

		default:
			a.println("Unknown command:", parts[0])
		}

		if err != nil {
			return
		}
	}
}
