package dvm

import (
	"context"
	"log/slog"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/haasonsaas/notedvm/internal/events"
	"github.com/haasonsaas/notedvm/internal/observability"
)

const (
	// StatusSuccess is the NIP-90 status attached to every published result.
	StatusSuccess = "success"

	// DefaultDescription is the "alt" text of job results.
	DefaultDescription = "Recent notes from followed authors, newest first"

	// DefaultPublishTimeout bounds a single reply publication.
	DefaultPublishTimeout = 10 * time.Second
)

// RequestContext is one service request together with the history snapshot
// taken when the dispatcher picked it up.
type RequestContext struct {
	Request   *nostr.Event
	Snapshot  []string
	RequestID string
}

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	Signer         Signer
	Publisher      Publisher
	Description    string
	Relays         []string
	PublishTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
	Now            func() time.Time
}

// Responder turns service requests into signed, published job results.
type Responder struct {
	signer      Signer
	publisher   Publisher
	description string
	relays      []string
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	now         func() time.Time
}

// NewResponder creates a responder. Signer and Publisher are required.
func NewResponder(cfg ResponderConfig) *Responder {
	if cfg.Description == "" {
		cfg.Description = DefaultDescription
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Responder{
		signer:      cfg.Signer,
		publisher:   cfg.Publisher,
		description: cfg.Description,
		relays:      append([]string(nil), cfg.Relays...),
		timeout:     cfg.PublishTimeout,
		logger:      cfg.Logger.With("component", "responder"),
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		now:         cfg.Now,
	}
}

// BuildReply creates the unsigned job result for rc.
func (r *Responder) BuildReply(rc RequestContext) (*nostr.Event, error) {
	refs := make([]events.Reference, len(rc.Snapshot))
	for i, id := range rc.Snapshot {
		refs[i] = events.EventRef(id)
	}
	content, err := events.EncodeReferences(refs)
	if err != nil {
		return nil, &ResponderError{Stage: StageEncode, RequestID: rc.Request.ID, Err: err}
	}

	tags := nostr.Tags{
		events.EventRef(rc.Request.ID).Tag(),
		events.PubkeyRef(rc.Request.PubKey).Tag(),
		{"status", StatusSuccess},
		{"alt", r.description},
	}
	if len(r.relays) > 0 {
		tags = append(tags, append(nostr.Tag{"relays"}, r.relays...))
	}

	return &nostr.Event{
		Kind:      events.KindJobResult,
		CreatedAt: nostr.Timestamp(r.now().Unix()),
		Tags:      tags,
		Content:   content,
	}, nil
}

// Respond builds, signs and publishes the job result for rc. It returns only
// after the publication finished or timed out.
func (r *Responder) Respond(ctx context.Context, rc RequestContext) (*nostr.Event, error) {
	start := time.Now()
	ctx, span := r.tracer.TraceReply(ctx, rc.Request.ID, len(rc.Snapshot))
	defer span.End()

	reply, err := r.respond(ctx, rc)
	if err != nil {
		r.tracer.RecordError(span, err)
		r.metrics.ReplyObserved("error", time.Since(start))
		return nil, err
	}

	r.metrics.ReplyObserved("success", time.Since(start))
	r.logger.Info("job result published",
		"request_id", rc.RequestID,
		"request_event", rc.Request.ID,
		"result_event", reply.ID,
		"members", len(rc.Snapshot),
		"latency_ms", time.Since(start).Milliseconds())
	return reply, nil
}

func (r *Responder) respond(ctx context.Context, rc RequestContext) (*nostr.Event, error) {
	reply, err := r.BuildReply(rc)
	if err != nil {
		return nil, err
	}
	if err := r.signer.Sign(reply); err != nil {
		return nil, &ResponderError{Stage: StageSign, RequestID: rc.Request.ID, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, reply); err != nil {
		return nil, &ResponderError{Stage: StagePublish, RequestID: rc.Request.ID, Err: err}
	}
	return reply, nil
}
