// Package server wires the pilgrim server together: storage backends, mail,
// the account services, the HTTP API and the ops health listener, and runs
// them until a signal or context cancellation asks for graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/cryptox"
	"github.com/dmitrijs2005/pilgrim/internal/logging"
	"github.com/dmitrijs2005/pilgrim/internal/server/config"
	"github.com/dmitrijs2005/pilgrim/internal/server/mail"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/rest"
	"github.com/dmitrijs2005/pilgrim/internal/server/services"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/pilgrim/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	flushLog func()
	repos    repomanager.RepositoryManager
	janitor  sessions.Janitor
	http     *rest.HTTPServer
	grpc     *gs.GRPCServer
}

// hasherParams is a seam for tests; the production cost is slow on purpose.
var hasherParams = cryptox.DefaultParams

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	logger, flush, err := logging.New(c.LogFormat, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger, flushLog: flush}

	if err := app.initStorage(ctx); err != nil {
		flush()
		return nil, err
	}

	if err := app.initServers(); err != nil {
		_ = app.repos.Close()
		flush()
		return nil, err
	}

	return app, nil
}

func (app *App) initStorage(ctx context.Context) error {
	c := app.config

	var base repomanager.RepositoryManager
	if c.DatabaseDSN == "" {
		app.logger.Warn(ctx, "no database configured, using in-memory storage")
		mm := repomanager.NewInMemoryRepositoryManager()
		base = mm
		if c.RedisAddr == "" {
			app.janitor = mm.SessionJanitor()
		}
	} else {
		sm, err := repomanager.NewSQLRepositoryManager(ctx, c.DatabaseDriver, c.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		base = sm
		if c.RedisAddr == "" {
			app.janitor = sm.SessionJanitor()
		}
	}

	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		base = repomanager.NewWithRedisSessions(base, rdb)
	}

	app.repos = base
	return nil
}

func (app *App) initServers() error {
	c := app.config

	hasher, err := cryptox.NewHasher(hasherParams)
	if err != nil {
		return fmt.Errorf("hasher init error: %w", err)
	}

	links := mail.Links{PublicBaseURL: c.PublicBaseURL, ClientBaseURL: c.ClientBaseURL}
	var mailer mail.Mailer
	if c.ResendAPIKey != "" {
		rm, err := mail.NewResendMailer(c.ResendAPIKey, c.MailFrom, links)
		if err != nil {
			return fmt.Errorf("mailer init error: %w", err)
		}
		mailer = rm
	} else {
		mailer = mail.NewLogMailer(app.logger, links)
	}

	resolver := services.NewSessionResolver(app.repos.Users(), app.repos.Sessions(), []byte(c.SecretKey), c.SessionTTL, c.AdminUsername)

	auth := services.NewAuthService(app.repos, hasher, resolver, mailer, app.logger, services.AuthOptions{
		Admin:                  services.AdminCredential{Username: c.AdminUsername, PasswordHash: c.AdminPasswordHash},
		AutoVerify:             c.AutoVerify,
		AtomicPasswordReset:    c.AtomicPasswordReset,
		AllowAdminRegistration: c.AllowAdminRegistration,
	})
	profile := services.NewProfileService(app.repos.Users(), resolver)
	twoFactor := services.NewTwoFactorService(app.repos.Users(), mailer, app.logger)
	avatars := services.NewAvatarService(services.S3Settings{
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})

	h := rest.NewHandler(auth, resolver, profile, avatars, twoFactor, app.logger, rest.Options{
		ClientBaseURL: c.ClientBaseURL,
		SessionTTL:    c.SessionTTL,
		SecureCookies: c.Production,
	})

	app.http = rest.NewHTTPServer(c.EndpointAddrHTTP, rest.NewRouter(h, c.AllowedOrigins), app.logger)
	app.grpc = gs.NewGRPCServer(c.EndpointAddrGRPC, app.logger, app.repos, 10*time.Second)

	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startServer(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

// sweepSessions purges expired sessions from the memory or SQL store until
// ctx is done. Redis expires keys itself.
func (app *App) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(app.config.SessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.janitor.DeleteExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					app.logger.Error(ctx, "session sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				app.logger.Debug(ctx, "expired sessions removed", "count", n)
			}
		}
	}
}

// Run blocks until ctx is cancelled, a termination signal arrives or one of
// the listeners fails. Storage is closed before it returns.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "http", app.http.Run)
	}()
	go func() {
		defer wg.Done()
		app.startServer(ctx, cancelFunc, "grpc", app.grpc.Run)
	}()

	if app.janitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.sweepSessions(ctx)
		}()
	}

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(context.Background(), "storage close error", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
	app.flushLog()
}
