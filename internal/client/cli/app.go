package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jay/dadmail-client/internal/client/api"
	"github.com/jay/dadmail-client/internal/client/config"
	"github.com/jay/dadmail-client/internal/client/gateway"
	"github.com/jay/dadmail-client/internal/client/repositories/metadata"
	"github.com/jay/dadmail-client/internal/client/services"
	"github.com/jay/dadmail-client/internal/client/session"
	"github.com/jay/dadmail-client/internal/client/storage"
	"github.com/jay/dadmail-client/internal/client/tokens"
	"github.com/jay/dadmail-client/internal/common"
	"github.com/jay/dadmail-client/internal/filex"
	"github.com/jay/dadmail-client/internal/logging"
)

const (
	appName     = "DadMail"
	dbFileName  = "dadmail.db"
	logName     = "dadmail.log"
	pingTimeout = 3 * time.Second
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	log    logging.Logger

	db      *sql.DB
	logFile io.Closer
	gw      *gateway.Gateway
	store   *session.Store
	account services.AccountService
	mail    services.MailService

	reader *bufio.Reader

	mu     sync.Mutex
	mode   Mode
	screen Screen

	unsubscribe func()
}

// NewApp wires the client from c. The caller must Close the returned App.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("prepare data dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dataDir, logName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log, err := logging.New(c.LogFormat, c.LogLevel, logFile)
	if err != nil {
		_ = logFile.Close()
		return nil, err
	}

	db, err := storage.InitDatabase(ctx, filepath.Join(dataDir, dbFileName))
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	a, err := newApp(ctx, c, db, log)
	if err != nil {
		_ = db.Close()
		_ = logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

func newApp(ctx context.Context, c *config.Config, db *sql.DB, log logging.Logger) (*App, error) {
	sealer, err := storage.NewSealer(ctx, db, c.StorageSecret)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage sealer: %w", err)
	}
	tokenStore := tokens.NewSQLiteStorage(db, sealer)

	a := &App{
		config: c,
		log:    log,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		screen: ScreenLogin,
	}

	a.gw = gateway.New(c.APIBaseURL, c.RequestTimeout, tokenStore,
		gateway.WithLogger(log.With("component", "gateway")),
		gateway.WithHealthURL(c.HealthURL),
		gateway.WithHooks(gateway.Hooks{
			OnRefreshed: func(ctx context.Context, access, refresh string) {
				a.store.AdoptTokens(ctx, access, refresh)
			},
			OnSessionExpired: func(ctx context.Context) {
				a.store.Invalidate(ctx)
			},
		}))

	persister := session.NewMetadataPersister(metadata.NewSQLiteRepository(db, common.SessionNamespace), sealer)
	a.store = session.New(api.NewAuthAPI(a.gw), tokenStore,
		session.WithPersister(persister),
		session.WithLogger(log.With("component", "session")))

	a.account = services.NewAccountService(api.NewUserAPI(a.gw), a.store)
	a.mail = services.NewMailService(api.NewEmailAPI(a.gw))

	a.unsubscribe = a.store.Subscribe(a.onSessionChange)
	if err := a.store.Restore(ctx); err != nil {
		// A corrupt or foreign snapshot only costs the user a login.
		a.log.Warn(ctx, "restore session", "error", err)
		a.store.Invalidate(ctx)
		a.store.ClearError()
	}
	return a, nil
}

// Close releases the database and the log file.
func (a *App) Close() error {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	var err error
	if a.db != nil {
		err = a.db.Close()
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
	return err
}

// Run blocks in the REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printBanner()
	printlnFn("Welcome to DadMail (type 'help' for commands)")

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	if a.isLoggedIn() {
		printlnFn(fmt.Sprintf("Welcome back, %s!", a.store.State().User.DisplayName()))
	}
	runREPL(ctx, a, a.getStatus, a.reader)
}

func printBanner() {
	printlnFn(figure.NewFigure(appName, "", true).String())
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.log.Info(context.Background(), "connectivity changed", "mode", string(mode))
		printlnFn(fmt.Sprintf("Switched to %s mode", mode))
	}
}

func (a *App) currentMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// checkOnline pings the backend once and updates the mode.
func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := a.gw.Ping(ctx); err != nil {
		a.log.Debug(ctx, "ping failed", "error", err)
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// StartOnlineStatusWatcher checks connectivity immediately and then every
// interval until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}
