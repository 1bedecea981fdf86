package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jay/dadmail-client/internal/client/gateway"
	"github.com/jay/dadmail-client/internal/client/services"
	"github.com/jay/dadmail-client/internal/client/session"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Me(ctx context.Context) error
	Rename(ctx context.Context, args []string) error
	Inbox(ctx context.Context, args []string) error
	Read(ctx context.Context, args []string) error
	Category(ctx context.Context, args []string) error
	Send(ctx context.Context) error
	Status(ctx context.Context) error
}

const (
	loginHelp     = "Available commands: register, login, status, help, exit"
	dashboardHelp = "Available commands: me, rename <name>, inbox [page] [unread], read <id>, category <name>, send, logout, status, help, exit"
)

// runREPL reads one command per line from in and dispatches it to a. The
// commands on offer depend on the screen: dashboard commands are refused
// until the user is logged in. Errors are reported to the user in plain
// words and never end the loop. It returns on EOF, "exit"/"quit", or when
// ctx is cancelled.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("dadmail%s> ", prefixed(statusFn())))

		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		report(dispatch(ctx, a, cmd, args))
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			printlnFn(dashboardHelp)
		} else {
			printlnFn(loginHelp)
		}
		return nil
	case "status":
		return a.Status(ctx)
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	}

	switch cmd {
	case "me", "rename", "inbox", "read", "category", "send", "logout":
		if !a.isLoggedIn() {
			printlnFn("Please log in first. Type 'login' to sign in.")
			return nil
		}
	}

	switch cmd {
	case "me":
		return a.Me(ctx)
	case "rename":
		return a.Rename(ctx, args)
	case "inbox":
		return a.Inbox(ctx, args)
	case "read":
		return a.Read(ctx, args)
	case "category":
		return a.Category(ctx, args)
	case "send":
		return a.Send(ctx)
	case "logout":
		return a.Logout(ctx)
	default:
		printlnFn("Unknown command:", cmd)
		return nil
	}
}

func report(err error) {
	if err != nil {
		printlnFn(userMessage(err))
	}
}

// userMessage turns err into a sentence suitable for the user.
func userMessage(err error) string {
	var authErr *session.AuthError
	var apiErr *gateway.APIError
	switch {
	case errors.As(err, &authErr):
		return authErr.Message
	case gateway.IsUnavailable(err):
		return "The DadMail server cannot be reached. Please check your internet connection and try again."
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, gateway.ErrUnauthorized):
		return "Please log in again."
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, services.ErrEmptyFullName),
		errors.Is(err, services.ErrEmptyID),
		errors.Is(err, services.ErrEmptyCategory),
		errors.Is(err, services.ErrNoRecipients),
		errors.Is(err, services.ErrEmptyBody),
		errors.Is(err, services.ErrInvalidRecipient):
		return capitalize(err.Error()) + "."
	default:
		return "Something went wrong: " + err.Error()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func prefixed(status string) string {
	if status == "" {
		return ""
	}
	return " " + status
}
