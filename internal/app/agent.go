// Package app wires the relay pool, hand-off queue, dispatcher and responder
// into a running agent.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/notedvm/internal/config"
	"github.com/haasonsaas/notedvm/internal/dispatch"
	"github.com/haasonsaas/notedvm/internal/dvm"
	"github.com/haasonsaas/notedvm/internal/events"
	"github.com/haasonsaas/notedvm/internal/history"
	"github.com/haasonsaas/notedvm/internal/observability"
	"github.com/haasonsaas/notedvm/internal/relay"
)

// Options configures an Agent.
type Options struct {
	Config *config.Config
	// ConfigPath, when set, is where the announced flag is persisted and
	// which is watched for admin changes.
	ConfigPath string
	Logger     *slog.Logger
	// Registry defaults to a fresh registry.
	Registry *prometheus.Registry
	// Dialer defaults to websocket relays.
	Dialer  relay.Dialer
	Version string
}

// Agent is one running instance of the service.
type Agent struct {
	cfg       *config.Config
	path      string
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	signer    *dvm.KeySigner
	pool      *relay.Pool
	queue     *dispatch.Queue
	buffer    *history.Buffer
	responder *dvm.Responder
	dispatch  *dispatch.Dispatcher
	startedAt time.Time

	stopTracer func(context.Context) error
	httpServer *http.Server
	closeOnce  sync.Once
}

// New builds an agent from a validated, bootstrapped config.
func New(opts Options) (*Agent, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	logger := opts.Logger

	signer, err := dvm.NewKeySigner(cfg.Package.Nsec)
	if err != nil {
		return nil, fmt.Errorf("app: agent key: %w", err)
	}

	metrics := observability.NewMetrics(opts.Registry)
	tracer, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "notedvm",
		ServiceVersion: opts.Version,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.Sampling(),
		EnableInsecure: cfg.Observability.Tracing.Insecure,
	})

	pool, err := relay.NewPool(relay.Config{
		URLs:         cfg.Comms.Relays,
		Dialer:       opts.Dialer,
		PublishRate:  cfg.DVM.PublishRate,
		PublishBurst: cfg.DVM.PublishBurst,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
	})
	if err != nil {
		_ = stopTracer(context.Background())
		return nil, err
	}

	queue := dispatch.NewQueue(cfg.Queue.Capacity, func(ev *nostr.Event) {
		metrics.EventDropped("queue_full")
		logger.Warn("hand-off queue full, dropped oldest event", "event_id", ev.ID)
	})
	buffer := history.New(cfg.Buffer.Capacity)

	responder := dvm.NewResponder(dvm.ResponderConfig{
		Signer:         signer,
		Publisher:      pool,
		Description:    cfg.DVM.Description,
		Relays:         pool.URLs(),
		PublishTimeout: cfg.PublishTimeout(),
		Logger:         logger,
		Metrics:        metrics,
		Tracer:         tracer,
	})

	admins := allowList(cfg, logger)
	dispatcher := dispatch.New(dispatch.Config{
		Source:    queue,
		Buffer:    buffer,
		Responder: responder,
		Admins:    admins,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
	})

	return &Agent{
		cfg:        cfg,
		path:       opts.ConfigPath,
		logger:     logger.With("component", "agent"),
		registry:   opts.Registry,
		metrics:    metrics,
		tracer:     tracer,
		signer:     signer,
		pool:       pool,
		queue:      queue,
		buffer:     buffer,
		responder:  responder,
		dispatch:   dispatcher,
		startedAt:  time.Now(),
		stopTracer: stopTracer,
	}, nil
}

func allowList(cfg *config.Config, logger *slog.Logger) events.AllowList {
	admins, errs := events.NewAllowList(cfg.Comms.Admins)
	for _, err := range errs {
		logger.Warn("ignoring invalid admin key", "error", err)
	}
	return admins
}

// Npub returns the agent public key in bech32.
func (a *Agent) Npub() string { return a.signer.Npub() }

// Connect dials the configured relays.
func (a *Agent) Connect(ctx context.Context) error {
	return a.pool.Connect(ctx)
}

// Run connects, announces the agent if it never did, subscribes and then
// dispatches events until ctx is done. It returns nil on cancellation.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.Close()

	if err := a.Connect(ctx); err != nil {
		return err
	}

	if !a.cfg.Package.Announced {
		if _, err := a.Announce(ctx); err != nil {
			a.logger.Warn("handler announcement failed, retrying on next start", "error", err)
		}
	}

	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		if err := a.startHTTP(addr); err != nil {
			return err
		}
	}

	if a.path != "" {
		go func() {
			if err := config.Watch(ctx, a.path, 0, a.logger, a.reload); err != nil {
				a.logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	peers := a.cfg.Peers()
	a.pool.Subscribe(ctx, dvm.Filters(peers, a.cfg.Buffer.Capacity, a.startedAt), a.queue)

	a.logger.Info("agent running",
		"npub", a.Npub(),
		"relays", a.pool.Connected(),
		"peers", len(peers),
		"history_capacity", a.buffer.Cap())

	return a.dispatch.Run(ctx)
}

// Announce publishes the handler announcement and records that it was sent.
// The flag is only set once a relay accepted the event.
func (a *Agent) Announce(ctx context.Context) (*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PublishTimeout())
	defer cancel()

	ev, err := dvm.Announce(ctx, a.signer, a.pool, dvm.Profile{
		Name:       a.cfg.Package.Name,
		About:      a.cfg.Package.About,
		Lud16:      a.cfg.Package.Lnurl,
		Identifier: a.cfg.Package.RandomID,
	})
	if err != nil {
		return nil, err
	}

	a.cfg.Package.Announced = true
	if a.path != "" {
		if err := config.Save(a.path, a.cfg); err != nil {
			return ev, fmt.Errorf("persist announced flag: %w", err)
		}
	}
	a.logger.Info("handler announcement published", "event_id", ev.ID, "d", a.cfg.Package.RandomID)
	return ev, nil
}

// reload applies the hot-reloadable parts of a changed config.
func (a *Agent) reload(cfg *config.Config) {
	a.dispatch.UpdateAdmins(allowList(cfg, a.logger))
	if len(cfg.Comms.Npubs) != len(a.cfg.Comms.Npubs) {
		a.logger.Info("followed authors changed, restart to resubscribe")
	}
}

func (a *Agent) startHTTP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", "error", err)
		}
	}()
	a.logger.Info("starting http server", "addr", listener.Addr().String())
	return nil
}

// Close stops the HTTP server, closes relay connections and flushes traces.
// It is safe to call more than once.
func (a *Agent) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.httpServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
			cancel()
		}
		if err := a.pool.Close(); err != nil {
			errs = append(errs, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.stopTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		cancel()
	})
	return errors.Join(errs...)
}
