package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/calls"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/notify"
	"github.com/vovakirdan/wirechat-client/internal/service/friends"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-client/internal/transport/rest"
	"github.com/vovakirdan/wirechat-client/internal/transport/ws"
)

const shutdownTimeout = 5 * time.Second

// App wires together the session, the REST API and the offline cache.
type App struct {
	cfg     *config.Config
	log     *zerolog.Logger
	session *auth.Session
	api     *rest.Client
	store   store.Store

	// Auth is available without a connection.
	Auth *auth.Service

	registry *prometheus.Registry
	metrics  *stdhttp.Server
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	session, err := auth.OpenSession(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	api := rest.New(cfg.APIURL, session, logger)

	a := &App{
		cfg:      cfg,
		log:      logger,
		session:  session,
		api:      api,
		Auth:     auth.NewService(api, session),
		registry: prometheus.NewRegistry(),
	}
	metrics.Register(a.registry)
	a.registry.MustRegister(collectors.NewGoCollector())

	if cfg.CachePath != "" {
		st, err := sqlite.New(cfg.CachePath)
		if err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn().Err(err).Str("cache_path", cfg.CachePath).Msg("offline cache disabled")
		} else {
			a.store = st
			logger.Debug().Str("cache_path", cfg.CachePath).Msg("offline cache opened")
		}
	}

	if cfg.MetricsAddr != "" {
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		a.metrics = &stdhttp.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				logger.Warn().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server stopped")
			}
		}()
	}

	return a, nil
}

// API exposes the REST client.
func (a *App) API() *rest.Client {
	return a.api
}

// Registry exposes the metrics registry.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Logout forgets the token and wipes the offline cache.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Auth.Logout(); err != nil {
		return err
	}
	if a.store != nil {
		return a.store.Purge(ctx)
	}
	return nil
}

// Client is a connected session: the Syncer fed by the push channel plus the
// services built around it.
type Client struct {
	Self     core.Member
	Syncer   *core.Syncer
	Calls    *calls.Tracker
	Notify   *notify.Queue
	Friends  *friends.Service
	push     *ws.Client
	log      *zerolog.Logger
	finished chan struct{}
}

// Connect dials the push channel and loads the conversation list.
func (a *App) Connect(ctx context.Context) (*Client, error) {
	self, err := a.session.User()
	if err != nil {
		return nil, err
	}

	push, err := ws.Dial(ctx, a.cfg.WSURL, a.session.Token(), a.log, ws.Options{
		MaxTypingPerMinute: a.cfg.MaxEmitsPerMinute,
	})
	if err != nil {
		return nil, fmt.Errorf("connect push channel: %w", err)
	}

	queue := notify.New(a.cfg.NotificationTTL, a.log)
	tracker := calls.New(a.api, self.ID, a.log)

	opts := core.DefaultOptions(self)
	opts.SendTimeout = a.cfg.SendTimeout
	opts.TypingTimeout = a.cfg.TypingTimeout
	opts.RemoteTypingTTL = a.cfg.RemoteTypingTTL
	opts.Notifier = queue
	opts.Calls = tracker
	if a.store != nil {
		opts.Cache = a.store
	}
	syncer := core.NewSyncer(a.api, push, a.log, opts)

	if err := syncer.LoadConversations(ctx); err != nil {
		push.Close()
		queue.Close()
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	a.log.Info().Str("user_id", self.ID).Str("ws_url", a.cfg.WSURL).Msg("connected")
	return &Client{
		Self:     self,
		Syncer:   syncer,
		Calls:    tracker,
		Notify:   queue,
		Friends:  friends.New(a.api, self.ID),
		push:     push,
		log:      a.log,
		finished: make(chan struct{}),
	}, nil
}

// Open shows a conversation: its history is loaded and its notifications cleared.
func (c *Client) Open(ctx context.Context, conversationID string) error {
	if err := c.Syncer.LoadMessages(ctx, conversationID); err != nil {
		return err
	}
	c.Syncer.Open(ctx, conversationID)
	c.Notify.DismissConversation(conversationID)
	return nil
}

// Run applies push events until ctx is done or the server closes the socket,
// then lets in-flight sends settle.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.finished)

	pushErr := make(chan error, 1)
	go func() {
		pushErr <- c.push.Run(ctx)
	}()

	// Syncer.Run returns when the push channel closes its events.
	runErr := c.Syncer.Run(ctx, c.push.Events())
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	c.push.Close()
	err := <-pushErr
	if ctx.Err() != nil {
		// Errors after cancellation come from our own close.
		err = nil
	}

	done := make(chan struct{})
	go func() {
		c.Syncer.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		c.log.Warn().Msg("gave up waiting for in-flight sends")
	}
	c.Notify.Close()

	if runErr != nil {
		return runErr
	}
	return err
}

// Close flushes queued emits and cache writes, then stops the push channel;
// Run returns shortly after.
func (c *Client) Close() {
	c.Syncer.Shutdown()
	c.push.Close()
}

// Done is closed after Run returned.
func (c *Client) Done() <-chan struct{} {
	return c.finished
}

// Close releases the cache and the metrics server.
func (a *App) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop metrics server")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Debug().Msg("store closed")
		}
	}
}
