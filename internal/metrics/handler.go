package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry builds a dedicated prometheus.Registry (not the global default)
// so each service process only exposes the collectors it actually owns.
func Registry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return reg
}

// Serve starts a loopback-only HTTP server exposing /metrics for reg, and
// returns a shutdown func. Listening on loopback keeps the scrape endpoint
// off the network interface the daemon's IPC sockets already avoid.
func Serve(addr string, reg *prometheus.Registry, log interface{ Error(string, ...any) }) (shutdown func(context.Context) error, err error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Handler: mux}
	go func() {
		if serveErr := srv.Serve(lis); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Error("metrics server exited", "error", serveErr)
		}
	}()

	return func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}, nil
}
