// Package dispatch runs the single-writer event loop that owns the history
// buffer: it pulls inbound events from the hand-off queue one at a time,
// classifies them and runs the matching handler to completion.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/dvm"
	"github.com/haasonsaas/notedvm/internal/events"
	"github.com/haasonsaas/notedvm/internal/history"
	"github.com/haasonsaas/notedvm/internal/observability"
)

// State is the dispatcher's position in its per-item state machine.
type State int32

const (
	StateIdle State = iota
	StateClassifying
	StateInserting
	StateResponding
	StateDelegatingDM
	StateDiscarding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateClassifying:
		return "classifying"
	case StateInserting:
		return "inserting"
	case StateResponding:
		return "responding"
	case StateDelegatingDM:
		return "delegating_dm"
	case StateDiscarding:
		return "discarding"
	default:
		return "unknown"
	}
}

// Responder answers service requests.
type Responder interface {
	Respond(ctx context.Context, rc dvm.RequestContext) (*nostr.Event, error)
}

// DirectMessageHandler handles direct messages from admins.
type DirectMessageHandler func(ctx context.Context, ev *nostr.Event) error

// NotImplementedDM is the direct-message handler: decryption is not supported,
// so it accepts the event and does nothing.
func NotImplementedDM(context.Context, *nostr.Event) error { return nil }

// Source yields inbound events.
type Source interface {
	Next(ctx context.Context) (*nostr.Event, error)
}

// Config configures a Dispatcher.
type Config struct {
	Source    Source
	Buffer    *history.Buffer
	Responder Responder
	// DirectMessages defaults to NotImplementedDM.
	DirectMessages DirectMessageHandler
	Admins         events.AllowList
	Logger         *slog.Logger
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Status is a point-in-time view of the dispatcher for health reporting.
type Status struct {
	State       string `json:"state"`
	Processed   uint64 `json:"processed"`
	Failures    uint64 `json:"failures"`
	HistorySize int    `json:"history_size"`
	HistoryCap  int    `json:"history_capacity"`
}

// Dispatcher is the sequential consumer of the hand-off queue. The buffer and
// the admin allow-list are only touched from the goroutine running Run.
type Dispatcher struct {
	source    Source
	buffer    *history.Buffer
	responder Responder
	dm        DirectMessageHandler
	admins    events.AllowList
	updates   chan events.AllowList
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer

	state       atomic.Int32
	processed   atomic.Uint64
	failures    atomic.Uint64
	historySize atomic.Int64
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Buffer == nil {
		cfg.Buffer = history.New(history.DefaultCapacity)
	}
	if cfg.DirectMessages == nil {
		cfg.DirectMessages = NotImplementedDM
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		source:    cfg.Source,
		buffer:    cfg.Buffer,
		responder: cfg.Responder,
		dm:        cfg.DirectMessages,
		admins:    cfg.Admins,
		updates:   make(chan events.AllowList, 1),
		logger:    cfg.Logger.With("component", "dispatcher"),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}
}

// Run processes events until ctx is done. It returns nil on cancellation and
// an error only when the history buffer reports an invariant violation.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("waiting for events", "history_capacity", d.buffer.Cap())
	for {
		d.applyUpdates()

		ev, err := d.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dispatch: read inbound queue: %w", err)
		}

		if q, ok := d.source.(interface{ Len() int }); ok {
			d.metrics.SetQueueDepth(q.Len())
		}
		d.applyUpdates()
		if _, err := d.Handle(ctx, ev); errors.Is(err, history.ErrInvariantViolation) {
			d.logger.Error("history buffer corrupted, stopping", "error", err)
			return err
		}
	}
}

// Handle runs one iteration for ev: classify, route and execute the handler.
// Handler errors are logged and returned; callers other than Run may inspect
// them, Run only stops on buffer invariant violations.
func (d *Dispatcher) Handle(ctx context.Context, ev *nostr.Event) (events.Route, error) {
	defer d.setState(StateIdle)
	d.processed.Add(1)

	d.setState(StateClassifying)
	category := events.Classify(ev, d.admins)
	route := events.RouteFor(category)
	d.metrics.EventClassified(category.String())

	eventID := ""
	if ev != nil {
		eventID = ev.ID
	}
	ctx, span := d.tracer.TraceDispatch(ctx, category.String(), eventID)
	defer span.End()

	var err error
	switch route {
	case events.RouteInsert:
		d.setState(StateInserting)
		err = d.insert(ev)
	case events.RouteRespond:
		d.setState(StateResponding)
		err = d.respond(ctx, ev)
	case events.RouteNotImplemented:
		d.setState(StateDelegatingDM)
		d.logger.Debug("delegating direct message", "event_id", eventID)
		err = d.dm(ctx, ev)
	default:
		d.setState(StateDiscarding)
		d.logger.Debug("discarding event", "event_id", eventID, "category", category.String())
	}

	if err != nil {
		d.failures.Add(1)
		d.metrics.HandlerFailed(route.String())
		d.tracer.RecordError(span, err)
		d.logger.Warn("handler failed",
			"route", route.String(),
			"event_id", eventID,
			"error", err)
	}
	return route, err
}

func (d *Dispatcher) insert(ev *nostr.Event) error {
	res, err := d.buffer.Insert(ev)
	d.historySize.Store(int64(d.buffer.Len()))
	d.metrics.HistoryInserted(res.Outcome.String(), res.Evicted != "", d.buffer.Len())
	if err != nil {
		return err
	}
	if res.Outcome == history.Inserted {
		d.logger.Debug("note buffered",
			"event_id", ev.ID,
			"author", ev.PubKey,
			"evicted", res.Evicted,
			"size", d.buffer.Len())
	}
	return nil
}

func (d *Dispatcher) respond(ctx context.Context, ev *nostr.Event) error {
	if d.responder == nil {
		return errors.New("dispatch: no responder configured")
	}
	rc := dvm.RequestContext{
		Request:   ev,
		Snapshot:  d.buffer.Snapshot(),
		RequestID: uuid.NewString(),
	}
	d.logger.Info("service request received",
		"request_id", rc.RequestID,
		"event_id", ev.ID,
		"requester", ev.PubKey,
		"members", len(rc.Snapshot))
	_, err := d.responder.Respond(ctx, rc)
	return err
}

// UpdateAdmins hands a new admin allow-list to the loop. It is applied before
// the next event is classified; a pending update that was not yet applied is
// replaced.
func (d *Dispatcher) UpdateAdmins(admins events.AllowList) {
	for {
		select {
		case d.updates <- admins:
			return
		default:
		}
		select {
		case <-d.updates:
		default:
		}
	}
}

func (d *Dispatcher) applyUpdates() {
	select {
	case admins := <-d.updates:
		d.admins = admins
		d.logger.Info("admin allow-list updated", "admins", admins.Len())
	default:
	}
}

// State returns the current state.
func (d *Dispatcher) State() State { return State(d.state.Load()) }

// Status returns counters safe to read from any goroutine.
func (d *Dispatcher) Status() Status {
	return Status{
		State:       d.State().String(),
		Processed:   d.processed.Load(),
		Failures:    d.failures.Load(),
		HistorySize: int(d.historySize.Load()),
		HistoryCap:  d.buffer.Cap(),
	}
}

func (d *Dispatcher) setState(s State) { d.state.Store(int32(s)) }
