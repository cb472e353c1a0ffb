// Package health serves the bot's liveness endpoint and Prometheus metrics,
// and probes that endpoint for container health checks.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	HealthzPath = "/healthz"
	MetricsPath = "/metrics"

	// MaxHeartbeatAge is how long the gateway may go without a heartbeat
	// ack before the bot counts as unhealthy.
	MaxHeartbeatAge = 2 * time.Minute
)

var (
	ErrNotConnected   = errors.New("gateway is not connected")
	ErrStaleHeartbeat = errors.New("gateway heartbeat is stale")
)

// Checker reports nil while the process is healthy.
type Checker interface {
	Check() error
}

type CheckerFunc func() error

func (f CheckerFunc) Check() error {
	return f()
}

// CheckGateway is the health rule for a gateway connection.
func CheckGateway(ready bool, lastAck, now time.Time) error {
	if !ready {
		return ErrNotConnected
	}
	if age := now.Sub(lastAck); age > MaxHeartbeatAge {
		return fmt.Errorf("last ack %s ago: %w", age.Round(time.Second), ErrStaleHeartbeat)
	}
	return nil
}

// GatewayChecker checks a discordgo session.
type GatewayChecker struct {
	Session *discordgo.Session
}

func (g GatewayChecker) Check() error {
	g.Session.RLock()
	ready, lastAck := g.Session.DataReady, g.Session.LastHeartbeatAck
	g.Session.RUnlock()
	return CheckGateway(ready, lastAck, time.Now())
}

var (
	_ Checker = GatewayChecker{}
	_ Checker = CheckerFunc(nil)
)

func healthzHandler(checker Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := checker.Check(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, err.Error())
			return
		}
		_, _ = io.WriteString(w, "ok")
	}
}

// NewHandler routes the health and metrics endpoints.
func NewHandler(checker Checker, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthzPath, healthzHandler(checker))
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func NewServer(addr string, checker Checker, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(checker, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Probe asks the health endpoint at url whether the bot is healthy.
func Probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach health endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: %s: %s", resp.Status, body)
	}
	return nil
}
