// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/glide/internal/api"
	"github.com/starford/glide/internal/audio"
	"github.com/starford/glide/internal/auth"
	"github.com/starford/glide/internal/inbox"
	"github.com/starford/glide/internal/mcpserver"
	"github.com/starford/glide/internal/models"
	"github.com/starford/glide/internal/noteservice"
	"github.com/starford/glide/internal/remote"
	"github.com/starford/glide/internal/sse"
	"github.com/starford/glide/internal/storage"
	"github.com/starford/glide/internal/store"
	"github.com/starford/glide/internal/syncengine"
	"github.com/starford/glide/internal/syncqueue"
)

var (
	errConfigRequired = errors.New("config is required")
	// errShutdown ends an errgroup so the remaining loops are cancelled.
	errShutdown = errors.New("shutdown")
)

// newLogger builds the JSON logger. A configured log file is rotated with
// lumberjack; otherwise logs go to out.
func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	if cfg.App.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.App.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	} else if out == nil {
		out = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// components is everything the commands share.
type components struct {
	cfg     *Config
	log     *slog.Logger
	db      *store.DB
	queue   *syncqueue.Queue
	client  *remote.Client
	engine  *syncengine.Engine
	broker  *sse.Broker
	notes   *noteservice.Service
	files   *storage.FS
	uploads *audio.Manager
}

func (c *components) Close() {
	c.broker.Close()
	if err := c.db.Close(); err != nil {
		c.log.Warn("close store", slog.String("error", err.Error()))
	}
}

func build(cfg *Config, logger *slog.Logger) (*components, error) {
	for _, dir := range []string{cfg.Store.DataDir, cfg.AudioDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	db, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	files, err := storage.NewFS(cfg.AudioDir())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init audio storage: %w", err)
	}

	broker := sse.NewBroker(0)

	// The refresh exchange goes through a bare client so a rejected
	// refresh token cannot recurse into another refresh.
	creds := auth.NewFileStore(cfg.CredentialsPath())
	refresher := remote.New(cfg.Remote.BaseURL,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithLogger(logger))
	coord := auth.NewCoordinator(refresher, creds,
		auth.WithTimeout(cfg.Auth.RefreshTimeout),
		auth.WithCleanupPolicy(auth.CleanupPolicy{CriticalFailures: cfg.Auth.CriticalCleanupFailures}),
		auth.WithLogger(logger),
		auth.OnReauthRequired(func(res auth.CleanupResult) {
			logger.Warn("Sign-in required",
				slog.Any("cleared", res.Cleared),
				slog.Any("failed", res.Failed),
				slog.Bool("critical", res.Critical))
			broker.Publish(sse.Event{Type: sse.TypeReauthRequired, Data: res})
		}))
	client := remote.New(cfg.Remote.BaseURL,
		remote.WithHTTPClient(&http.Client{Transport: auth.NewTransport(creds, coord)}),
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithLogger(logger))

	queue := syncqueue.New(db, syncqueue.WithMaxAttempts(cfg.Sync.MaxRetries))
	engine := syncengine.New(db, queue, client, syncengine.Config{
		BatchSize:   cfg.Sync.BatchSize,
		PageSize:    cfg.Sync.PageSize,
		ItemTimeout: cfg.Remote.Timeout,
		Interval:    cfg.Sync.Interval,
	}, syncengine.WithLogger(logger))
	engine.OnStatus(func(s syncengine.Status) { broker.PublishStatus(s) })

	notes := noteservice.NewService(db, queue,
		noteservice.WithPusher(engine),
		noteservice.WithNotifier(func(c noteservice.Change) {
			broker.PublishChange(string(c.Entity), c.ID, string(c.Op))
		}),
		noteservice.WithLogger(logger))

	uploads := audio.New(db, files, client, audio.Config{
		MaxRetries: cfg.Audio.MaxRetries,
		Retention:  cfg.Audio.Retention,
	}, audio.WithLogger(logger))

	return &components{
		cfg:     cfg,
		log:     logger,
		db:      db,
		queue:   queue,
		client:  client,
		engine:  engine,
		broker:  broker,
		notes:   notes,
		files:   files,
		uploads: uploads,
	}, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := apply(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(cfg, app.logOut)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Store.DataDir),
		slog.String("remote", cfg.Remote.BaseURL),
		slog.String("inbox_dir", cfg.Audio.InboxDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	c, err := build(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.notes.SetupDefaultFolders(ctx); err != nil {
		logger.Warn("default folders", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(api.Deps{
		Notes:       c.notes,
		Sync:        c.engine,
		Queue:       c.queue,
		Uploads:     c.uploads,
		Files:       c.files,
		Events:      c.broker,
		AuthEnabled: cfg.Auth.AuthEnabled(),
		Token:       cfg.Auth.Token,
	})

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Conn().PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"store unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Connectivity probe drives the online flag and reconnect syncs.
	g.Go(func() error {
		return c.engine.Monitor(gCtx, c.client.Ping, cfg.Remote.ProbeInterval)
	})

	// Sync loop; the first cycle hydrates an empty store.
	g.Go(func() error {
		c.engine.Trigger(syncengine.ReasonForeground)
		return c.engine.Run(gCtx)
	})

	// Upload loop with progress streamed to SSE clients.
	g.Go(func() error {
		c.uploads.Kick()
		return c.uploads.Run(gCtx, cfg.Audio.PollInterval, func(id string, p float64) {
			c.broker.Publish(sse.Event{
				Type: sse.TypeUploadProgress,
				Data: map[string]any{"id": id, "progress": p},
			})
		})
	})

	// Audio inbox watcher.
	if cfg.Audio.InboxDir != "" {
		if err := os.MkdirAll(cfg.Audio.InboxDir, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		in := inbox.New(cfg.Audio.InboxDir, c.files, c.notes, c.uploads,
			inbox.WithLogger(logger),
			inbox.OnImport(func(_ models.Note, u models.AudioUpload) {
				c.broker.Publish(sse.Event{Type: sse.TypeUploadQueued, Data: u})
			}))
		g.Go(func() error {
			return in.Watch(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the background loops once the server has drained.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// SyncOnce runs a single push-then-pull cycle and returns its result.
func SyncOnce(ctx context.Context, opts ...Option) (syncengine.Result, error) {
	return withComponents(ctx, opts, func(c *components) (syncengine.Result, error) {
		if err := c.client.Ping(ctx); err != nil {
			c.log.Warn("Server check failed", slog.String("error", err.Error()))
		}
		return c.engine.Sync(ctx)
	})
}

// Hydrate downloads the server's data into the local store. Without force
// an already hydrated store is left alone.
func Hydrate(ctx context.Context, force bool, opts ...Option) (syncengine.Result, error) {
	return withComponents(ctx, opts, func(c *components) (syncengine.Result, error) {
		return c.engine.Hydrate(ctx, force)
	})
}

// Reset discards every local record, queued changes included.
func Reset(ctx context.Context, opts ...Option) error {
	_, err := withComponents(ctx, opts, func(c *components) (struct{}, error) {
		st, err := c.queue.Depth(ctx)
		if err == nil && st.Pending+st.Exhausted > 0 {
			c.log.Warn("Discarding unsynced changes",
				slog.Int("pending", st.Pending), slog.Int("exhausted", st.Exhausted))
		}
		return struct{}{}, c.db.Reset()
	})
	return err
}

// ServeMCP serves the MCP tools on stdin/stdout while the sync and upload
// loops run in the background. Logs go to stderr unless a log file is
// configured.
func ServeMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	_, err := withComponents(ctx, opts, func(c *components) (struct{}, error) {
		if err := c.notes.SetupDefaultFolders(ctx); err != nil {
			c.log.Warn("default folders", slog.String("error", err.Error()))
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return c.engine.Monitor(gCtx, c.client.Ping, c.cfg.Remote.ProbeInterval)
		})
		g.Go(func() error {
			c.engine.Trigger(syncengine.ReasonForeground)
			return c.engine.Run(gCtx)
		})
		g.Go(func() error {
			return c.uploads.Run(gCtx, c.cfg.Audio.PollInterval, nil)
		})
		g.Go(func() error {
			defer c.log.Info("MCP session ended")
			if err := mcpserver.New(c.notes, c.engine, c.files, c.uploads).ServeStdio(); err != nil {
				return err
			}
			return errShutdown
		})

		if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

func withComponents[T any](ctx context.Context, opts []Option, fn func(*components) (T, error)) (T, error) {
	var zero T
	app, err := apply(opts)
	if err != nil {
		return zero, err
	}
	logger := newLogger(app.config, app.logOut)
	slog.SetDefault(logger)
	c, err := build(app.config, logger)
	if err != nil {
		return zero, err
	}
	defer c.Close()
	return fn(c)
}
