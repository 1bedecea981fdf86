package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jay/dadmail-client/internal/client/models"
)

// Me fetches the profile from the server and prints it.
func (a *App) Me(ctx context.Context) error {
	user, err := a.account.RefreshProfile(ctx)
	if err != nil {
		return err
	}
	printUser(user)
	return nil
}

// Rename changes the display name. The name may be given inline
// ("rename Grandpa Joe") or is asked for.
func (a *App) Rename(ctx context.Context, args []string) error {
	name := strings.Join(args, " ")
	if strings.TrimSpace(name) == "" {
		var err error
		if name, err = getSimpleText(a.reader, "Enter your new name", os.Stdout); err != nil {
			return err
		}
	}

	user, err := a.account.Rename(ctx, name)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Your name is now %s.", user.DisplayName()))
	return nil
}

func printUser(u *models.User) {
	printlnFn("Name:   ", u.DisplayName())
	printlnFn("Email:  ", u.Email)
	printlnFn("Role:   ", u.Role)
	if !u.CreatedAt.IsZero() {
		printlnFn("Member since:", u.CreatedAt.Format("January 2, 2006"))
	}
	if u.LastLoginAt != nil {
		printlnFn("Last login:  ", u.LastLoginAt.Local().Format("January 2, 2006 at 3:04 PM"))
	}
}
