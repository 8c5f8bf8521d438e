package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/oblivionis/oblivionis-go/internal/api"
	"github.com/oblivionis/oblivionis-go/internal/config"
	"github.com/oblivionis/oblivionis-go/internal/download"
	"github.com/oblivionis/oblivionis-go/internal/monitoring"
	"github.com/oblivionis/oblivionis-go/internal/network"
	"github.com/oblivionis/oblivionis-go/internal/pipeline"
	"github.com/oblivionis/oblivionis-go/internal/security"
	"github.com/oblivionis/oblivionis-go/internal/store"
)

// Options configure Initialize
type Options struct {
	ConfigPath  string
	LogLevel    string
	MetricsAddr string
	In          io.Reader
	Out         io.Writer
}

// App holds every long-lived component of one session
type App struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	db       *sql.DB
	sessions *store.SessionStore
	history  *store.HistoryStore
	sealer   *security.SessionSealer

	client     *api.Client
	queues     *pipeline.Queues
	dispatcher *download.Dispatcher
	reconciler *pipeline.Reconciler
	console    *Console
	lines      chan string
}

// Initialize loads settings, opens storage and wires the pipeline
func Initialize(parent context.Context, opts Options) (*App, error) {
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.GetConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.ListenAddr = opts.MetricsAddr
	}

	logger, err := monitoring.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	app := &App{
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		lines:      make(chan string),
	}

	logger.Info("Initializing", zap.String("config", configPath))

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = store.DefaultDBPath(config.GetDataDir())
	}
	app.db, err = store.InitDB(dbPath)
	if err != nil {
		cancel()
		logger.Sync()
		return nil, err
	}
	app.sessions = store.NewSessionStore(app.db)
	app.history = store.NewHistoryStore(app.db)
	app.sealer = security.NewSessionSealer(config.GetDataDir())

	app.client, err = api.NewClient(cfg.API, network.NewClient(nil), logger)
	if err != nil {
		app.db.Close()
		cancel()
		logger.Sync()
		return nil, err
	}
	app.restoreSession()

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := monitoring.ServeMetrics(ctx, addr); err != nil {
				logger.Error("Metrics endpoint stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
		logger.Info("Serving metrics", zap.String("addr", addr))
	}

	app.queues = pipeline.NewQueues()
	worker := download.NewWorker(app.client, app.history, logger)
	app.dispatcher = download.NewDispatcher(ctx, worker, cfg.Download.MaxConcurrent, app.queues.Download, logger)
	app.console = NewConsole(ctx, opts.Out, app.lines)
	app.console.downloaded = app.alreadyDownloaded

	app.reconciler = pipeline.NewReconciler(ctx, pipeline.Deps{
		Searcher:   app.client,
		Covers:     app.client,
		Dispatcher: app.dispatcher,
		Queues:     app.queues,
		Presenter:  app.console,
		Settings:   app.downloadSettings,
		Logger:     logger,
	})

	go readLines(opts.In, app.lines)

	logger.Info("Initialized",
		zap.String("api", cfg.API.BaseURL),
		zap.String("db", dbPath),
		zap.Int("max_concurrent", cfg.Download.MaxConcurrent))
	return app, nil
}

// Run drives the reconciler and the console on one goroutine until ctx is
// done, input ends or the user quits.
func (a *App) Run(ctx context.Context) {
	a.console.Greet(a.cfg)
	a.reconciler.Run(ctx, a.lines, a.handle)
}

// Shutdown stops every worker, persists the session and closes storage
func (a *App) Shutdown() {
	a.logger.Info("Shutting down")
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(done)
	}()
	for waiting := true; waiting; {
		select {
		case <-done:
			waiting = false
		case <-a.queues.Download:
		}
	}

	a.saveSession()

	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database", zap.Error(err))
	}
	a.logger.Sync()
}

func (a *App) alreadyDownloaded(song api.SongRecord) bool {
	n, err := a.history.Count(song.Source, song.ID.String())
	return err == nil && n > 0
}

func (a *App) downloadSettings() config.DownloadConfig {
	return a.cfg.Download
}

// restoreSession loads the sealed cookie jar of the previous run. Any
// failure only costs the session.
func (a *App) restoreSession() {
	blob, err := a.sessions.Load(store.SessionKeyCookies)
	if err != nil || blob == nil {
		if err != nil {
			a.logger.Warn("Failed to load session", zap.Error(err))
		}
		return
	}

	plain, err := a.sealer.Open(blob)
	if err != nil {
		a.logger.Warn("Discarding unreadable session", zap.Error(err))
		a.sessions.Delete(store.SessionKeyCookies)
		if err := a.sealer.Reset(); err != nil {
			a.logger.Warn("Failed to reset session key", zap.Error(err))
		}
		return
	}

	n, err := network.ImportCookies(a.client.HTTPClient().Jar, a.client.BaseURL(), plain)
	if err != nil {
		a.logger.Warn("Failed to restore cookies", zap.Error(err))
		return
	}
	a.logger.Debug("Restored session cookies", zap.Int("count", n))
}

func (a *App) saveSession() {
	plain, err := network.ExportCookies(a.client.HTTPClient().Jar, a.client.BaseURL())
	if err != nil {
		a.logger.Warn("Failed to export cookies", zap.Error(err))
		return
	}
	if plain == nil {
		a.sessions.Delete(store.SessionKeyCookies)
		return
	}

	sealed, err := a.sealer.Seal(plain)
	if err != nil {
		a.logger.Warn("Failed to seal session", zap.Error(err))
		return
	}
	if err := a.sessions.Save(store.SessionKeyCookies, sealed); err != nil {
		a.logger.Warn("Failed to save session", zap.Error(err))
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- strings.TrimSpace(scanner.Text())
	}
}
