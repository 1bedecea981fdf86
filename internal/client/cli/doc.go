// Package cli provides the interactive DadMail command-line client.
//
// NewApp is the composition root. It opens the local SQLite store, wires
// the request gateway to the session store and restores the previous
// session. App.Run starts the online watcher and blocks in the REPL until
// the user exits.
//
// The REPL has two screens. The login screen accepts register and login;
// the dashboard adds the mail and profile commands. A session store
// subscription moves the user back to the login screen whenever the
// session stops being authenticated, including when a token refresh fails
// in the middle of a command.
package cli
