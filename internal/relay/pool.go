// Package relay manages the set of relay connections the agent listens on and
// publishes through.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/notedvm/internal/backoff"
	"github.com/haasonsaas/notedvm/internal/observability"
)

// Subscription is a live stream of events from one relay.
type Subscription struct {
	Events <-chan *nostr.Event
	Close  func()
}

// Conn is a single relay connection.
type Conn interface {
	URL() string
	Subscribe(ctx context.Context, filters nostr.Filters) (*Subscription, error)
	Publish(ctx context.Context, ev nostr.Event) error
	// Done is closed when the connection drops.
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a connection to a relay.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Sink receives verified, deduplicated events. It must not block.
type Sink interface {
	Offer(ev *nostr.Event)
}

// Status describes one configured relay.
type Status struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
}

// Config configures a Pool.
type Config struct {
	URLs   []string
	Dialer Dialer

	// PublishRate is the number of events per second the pool publishes.
	// Zero disables limiting.
	PublishRate  float64
	PublishBurst int

	// DialAttempts bounds the inline retries made by Connect.
	DialAttempts int
	DialPolicy   backoff.Policy
	// Reconnect spaces background reconnects of dropped subscriptions.
	Reconnect backoff.Policy

	SeenTTL  time.Duration
	SeenSize int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Pool owns the relay connections. Subscription loops run one goroutine per
// relay; Publish may be called from any goroutine.
type Pool struct {
	urls         []string
	dial         Dialer
	limiter      *rate.Limiter
	dialAttempts int
	dialPolicy   backoff.Policy
	reconnect    backoff.Policy
	seen         *Seen
	logger       *slog.Logger
	metrics      *observability.Metrics
	tracer       *observability.Tracer

	mu    sync.RWMutex
	conns map[string]Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool validates the relay URLs and creates an unconnected pool.
func NewPool(cfg Config) (*Pool, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrConfig("no relays configured", nil)
	}
	urls := make([]string, 0, len(cfg.URLs))
	seen := make(map[string]struct{}, len(cfg.URLs))
	for _, raw := range cfg.URLs {
		u := nostr.NormalizeURL(raw)
		if err := validateURL(u); err != nil {
			return nil, ErrConfig("invalid relay url", err).WithRelay(raw)
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	if cfg.Dialer == nil {
		cfg.Dialer = DialNostr
	}
	if cfg.DialAttempts <= 0 {
		cfg.DialAttempts = 3
	}
	if cfg.DialPolicy == (backoff.Policy{}) {
		cfg.DialPolicy = backoff.Quick()
	}
	if cfg.Reconnect == (backoff.Policy{}) {
		cfg.Reconnect = backoff.Reconnect()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.PublishRate > 0 {
		limit = rate.Limit(cfg.PublishRate)
	}
	burst := cfg.PublishBurst
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		urls:         urls,
		dial:         cfg.Dialer,
		limiter:      rate.NewLimiter(limit, burst),
		dialAttempts: cfg.DialAttempts,
		dialPolicy:   cfg.DialPolicy,
		reconnect:    cfg.Reconnect,
		seen:         NewSeen(cfg.SeenTTL, cfg.SeenSize),
		logger:       cfg.Logger.With("component", "relay_pool"),
		metrics:      cfg.Metrics,
		tracer:       cfg.Tracer,
		conns:        make(map[string]Conn, len(urls)),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// URLs returns the normalized relay URLs.
func (p *Pool) URLs() []string {
	return append([]string(nil), p.urls...)
}

// Connect dials every relay concurrently, retrying each a few times. It fails
// only when no relay could be reached; the rest are retried by the
// subscription loops.
func (p *Pool) Connect(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, len(p.urls))
	for i, u := range p.urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = backoff.Retry(ctx, p.dialPolicy, p.dialAttempts, func(attempt int) error {
				return p.connect(ctx, u, attempt)
			})
			if errs[i] != nil {
				p.logger.Warn("failed to connect to relay", "relay", u, "error", errs[i])
			}
		}()
	}
	wg.Wait()

	if n := p.Connected(); n == 0 {
		return ErrConnection("failed to connect to any relay", errors.Join(errs...))
	}
	p.logger.Info("relay pool connected", "connected", p.Connected(), "configured", len(p.urls))
	return nil
}

func (p *Pool) connect(ctx context.Context, u string, attempt int) error {
	conn, err := p.dial(ctx, u)
	if err != nil {
		p.logger.Debug("relay dial failed", "relay", u, "attempt", attempt, "error", err)
		return ErrConnection("dial failed", err).WithRelay(u)
	}

	p.mu.Lock()
	if old, ok := p.conns[u]; ok {
		_ = old.Close()
	}
	p.conns[u] = conn
	n := p.connectedLocked()
	p.mu.Unlock()

	p.metrics.SetRelaysConnected(n)
	p.logger.Debug("connected to relay", "relay", u)
	return nil
}

func (p *Pool) conn(u string) Conn {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conns[u]
}

func (p *Pool) drop(u string, conn Conn) {
	p.mu.Lock()
	if p.conns[u] == conn {
		delete(p.conns, u)
	}
	n := p.connectedLocked()
	p.mu.Unlock()

	_ = conn.Close()
	p.metrics.SetRelaysConnected(n)
}

// Subscribe starts one subscription loop per relay and returns immediately.
// Each loop delivers events to sink and reconnects with backoff when the
// relay drops, until ctx is done or the pool is closed.
func (p *Pool) Subscribe(ctx context.Context, filters nostr.Filters, sink Sink) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)

	var loops sync.WaitGroup
	for _, u := range p.urls {
		loops.Add(1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer loops.Done()
			p.subscribeLoop(ctx, u, filters, sink)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		loops.Wait()
		stop()
		cancel()
	}()
}

func (p *Pool) subscribeLoop(ctx context.Context, u string, filters nostr.Filters, sink Sink) {
	logger := p.logger.With("relay", u)
	failures := 0
	for {
		conn := p.conn(u)
		if conn == nil {
			if err := p.connect(ctx, u, failures+1); err == nil {
				conn = p.conn(u)
			}
		}

		if conn != nil {
			established, err := p.stream(ctx, conn, filters, sink)
			if ctx.Err() != nil {
				return
			}
			if established {
				failures = 0
			}
			logger.Warn("relay subscription ended", "error", err)
			p.drop(u, conn)
		}
		if ctx.Err() != nil {
			return
		}

		failures++
		delay := p.reconnect.Delay(failures)
		logger.Debug("reconnecting to relay", "attempt", failures, "delay", delay)
		if err := backoff.Sleep(ctx, delay); err != nil {
			return
		}
	}
}

// stream pumps one subscription until it ends. established reports whether
// the subscription was accepted by the relay.
func (p *Pool) stream(ctx context.Context, conn Conn, filters nostr.Filters, sink Sink) (established bool, err error) {
	sub, err := conn.Subscribe(ctx, filters)
	if err != nil {
		return false, ErrConnection("subscribe failed", err).WithRelay(conn.URL())
	}
	defer sub.Close()
	p.logger.Debug("subscribed to relay", "relay", conn.URL())

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-conn.Done():
			return true, ErrConnection("relay closed connection", nil).WithRelay(conn.URL())
		case ev, ok := <-sub.Events:
			if !ok {
				return true, ErrConnection("subscription closed", nil).WithRelay(conn.URL())
			}
			p.accept(conn.URL(), ev, sink)
		}
	}
}

// accept verifies ev and forwards it to sink unless another relay already
// delivered it.
func (p *Pool) accept(u string, ev *nostr.Event, sink Sink) {
	if ev == nil {
		return
	}
	if ok, err := ev.CheckSignature(); err != nil || !ok {
		p.metrics.EventDropped("invalid_signature")
		p.logger.Debug("dropping event with invalid signature",
			"relay", u,
			"event_id", ev.ID,
			"error", err)
		return
	}
	if p.seen.Check(ev.ID) {
		p.metrics.EventDropped("duplicate")
		return
	}
	sink.Offer(ev)
}

// Publish sends ev to every connected relay. It succeeds when at least one
// relay accepts the event.
func (p *Pool) Publish(ctx context.Context, ev *nostr.Event) error {
	if ev == nil || ev.ID == "" || ev.Sig == "" {
		return ErrInvalidInput("refusing to publish unsigned event", nil)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return ErrTimeout("publish rate limit", err)
	}

	p.mu.RLock()
	conns := make([]Conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	kind := strconv.Itoa(ev.Kind)
	if len(conns) == 0 {
		p.metrics.Published(kind, "unavailable")
		return ErrUnavailable("no relay connected", nil)
	}

	ctx, span := p.tracer.TracePublish(ctx, ev.Kind, len(conns))
	defer span.End()

	var wg sync.WaitGroup
	errs := make([]error, len(conns))
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Publish(ctx, *ev); err != nil {
				errs[i] = fmt.Errorf("%s: %w", c.URL(), err)
				p.logger.Warn("failed to publish to relay",
					"relay", c.URL(),
					"event_id", ev.ID,
					"error", err)
			}
		}()
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		}
	}
	if accepted == 0 {
		err := errors.Join(errs...)
		p.tracer.RecordError(span, err)
		p.metrics.Published(kind, "error")
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout("publish timed out on every relay", err)
		}
		return ErrConnection("failed to publish to any relay", err)
	}

	p.metrics.Published(kind, "success")
	p.logger.Debug("event published",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"accepted", accepted,
		"relays", len(conns))
	return nil
}

// Connected returns the number of live connections.
func (p *Pool) Connected() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectedLocked()
}

func (p *Pool) connectedLocked() int {
	n := 0
	for _, c := range p.conns {
		if alive(c) {
			n++
		}
	}
	return n
}

// Relays reports the state of every configured relay.
func (p *Pool) Relays() []Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Status, len(p.urls))
	for i, u := range p.urls {
		c, ok := p.conns[u]
		out[i] = Status{URL: u, Connected: ok && alive(c)}
	}
	return out
}

func alive(c Conn) bool {
	select {
	case <-c.Done():
		return false
	default:
		return true
	}
}

// Close stops the subscription loops and closes every connection.
func (p *Pool) Close() error {
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for u, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
		}
		delete(p.conns, u)
	}
	p.metrics.SetRelaysConnected(0)
	return errors.Join(errs...)
}
