package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AKMHZJ/localserver/pkg/logger"
)

// Counters and gauges for the data plane. The reactor owns all updates, so
// every metric here is touched from a single goroutine; prometheus types are
// safe regardless.
var (
	ConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localserver_connections_accepted_total",
		Help: "Connections accepted across all listeners.",
	})
	ConnectionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localserver_connections_reaped_total",
		Help: "Connections closed by the idle-timeout reaper.",
	})
	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localserver_connections_rejected_total",
		Help: "Connections refused by the accept rate limiter.",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "localserver_active_connections",
		Help: "Currently open client connections.",
	})
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "localserver_requests_total",
		Help: "Requests answered, by status class.",
	}, []string{"class"})
	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localserver_bytes_read_total",
		Help: "Bytes read from client sockets.",
	})
	BytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localserver_bytes_written_total",
		Help: "Bytes written to client sockets.",
	})
	CGITimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "localserver_cgi_timeouts_total",
		Help: "CGI children killed at the timeout.",
	})
)

// CountRequest records one answered request under its status class.
func CountRequest(status int) {
	RequestsTotal.WithLabelValues(strconv.Itoa(status/100) + "xx").Inc()
}

// Serve starts the admin endpoint on addr with /metrics and /healthz. It
// runs on its own goroutine with plain net/http, off the single-threaded
// data plane. An empty addr disables it.
func Serve(addr string) {
	if addr == "" {
		return
	}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("telemetry_listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("telemetry_server_failed", "error", err)
		}
	}()
}
