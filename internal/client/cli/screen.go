package cli

import (
	"fmt"
	"strings"

	"github.com/jay/dadmail-client/internal/client/session"
)

// Screen is the REPL view the user is on.
type Screen string

const (
	ScreenLogin     Screen = "login"
	ScreenDashboard Screen = "dashboard"
)

func screenFor(st session.State) Screen {
	if st.IsAuthenticated {
		return ScreenDashboard
	}
	return ScreenLogin
}

// onSessionChange follows the session store. Leaving the dashboard because
// the session expired is announced; an explicit logout is not.
func (a *App) onSessionChange(st session.State) {
	next := screenFor(st)

	a.mu.Lock()
	prev := a.screen
	a.screen = next
	a.mu.Unlock()

	if prev == ScreenDashboard && next == ScreenLogin && st.Error == session.SessionExpired {
		printlnFn(st.Error)
	}
}

func (a *App) currentScreen() Screen {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.screen
}

func (a *App) isLoggedIn() bool {
	return a.currentScreen() == ScreenDashboard
}

// getStatus renders the prompt suffix, e.g. "(joe@b.com online)".
func (a *App) getStatus() string {
	var parts []string
	if a.isLoggedIn() {
		if u := a.store.State().User; u != nil {
			parts = append(parts, u.Email)
		}
	}
	if m := a.currentMode(); m != "" {
		parts = append(parts, string(m))
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, " "))
}
