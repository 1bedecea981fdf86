package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jay/dadmail-client/internal/client/models"
	"github.com/jay/dadmail-client/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
)

// Register prompts for name, email and password and creates an account.
// On success the user lands on the dashboard already signed in.
func (a *App) Register(ctx context.Context) error {
	fullName, err := getSimpleText(a.reader, "Enter your full name", os.Stdout)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	data := models.RegisterData{Email: email, Password: string(password), FullName: fullName}
	if err := a.store.Register(ctx, data); err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("Welcome to DadMail, %s!", a.store.State().User.DisplayName()))
	return nil
}

// Login prompts for credentials and signs in. A failed attempt leaves the
// user on the login screen with the backend's reason.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		printlnFn("You are already logged in. Type 'logout' first to switch accounts.")
		return nil
	}

	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}
	password, err := getPassword(a.reader, os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	creds := models.LoginCredentials{Email: email, Password: string(password)}
	if err := a.store.Login(ctx, creds); err != nil {
		return err
	}

	printlnFn(fmt.Sprintf("Hello, %s!", a.store.State().User.DisplayName()))
	return nil
}

// Logout always succeeds locally, even when the server cannot be told.
func (a *App) Logout(ctx context.Context) error {
	a.store.Logout(ctx)
	printlnFn("You have been logged out. See you soon!")
	return nil
}

// Status prints connectivity and who is signed in.
func (a *App) Status(ctx context.Context) error {
	a.checkOnline(ctx)

	st := a.store.State()
	mode := a.currentMode()
	if st.IsAuthenticated && st.User != nil {
		printlnFn(fmt.Sprintf("Signed in as %s (%s), server %s", st.User.DisplayName(), st.User.Email, mode))
	} else {
		printlnFn(fmt.Sprintf("Not signed in, server %s", mode))
	}
	return nil
}
