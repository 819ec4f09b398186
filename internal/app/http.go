package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/notedvm/internal/dispatch"
	"github.com/haasonsaas/notedvm/internal/relay"
)

// Health is the /healthz payload.
type Health struct {
	Status     string          `json:"status"`
	Npub       string          `json:"npub"`
	Uptime     string          `json:"uptime"`
	Dispatcher dispatch.Status `json:"dispatcher"`
	Queue      QueueHealth     `json:"queue"`
	Relays     []relay.Status  `json:"relays"`
}

type QueueHealth struct {
	Length   int    `json:"length"`
	Capacity int    `json:"capacity"`
	Dropped  uint64 `json:"dropped"`
}

// Health reports the agent state. Status is "degraded" while no relay is
// connected.
func (a *Agent) Health() Health {
	status := "ok"
	if a.pool.Connected() == 0 {
		status = "degraded"
	}
	a.metrics.SetQueueDepth(a.queue.Len())
	return Health{
		Status:     status,
		Npub:       a.Npub(),
		Uptime:     time.Since(a.startedAt).Truncate(time.Second).String(),
		Dispatcher: a.dispatch.Status(),
		Queue: QueueHealth{
			Length:   a.queue.Len(),
			Capacity: a.queue.Cap(),
			Dropped:  a.queue.Dropped(),
		},
		Relays: a.pool.Relays(),
	}
}

// Handler serves /metrics and /healthz.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", a.handleHealthz)
	return mux
}

func (a *Agent) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health := a.Health()
	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(health) //nolint:errcheck
}
