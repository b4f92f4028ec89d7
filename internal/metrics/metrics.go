// Package metrics serves the endpoint's Stats collector on a Prometheus
// /metrics endpoint, using the same graceful-server primitive the rest of
// the daemon's lifecycle is built on.
package metrics

import (
	"context"
	"net/http"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve registers collectors with a fresh Prometheus registry and runs an
// HTTP server on addr exposing it at /metrics, as a goroutine in group,
// until the group's context is shut down.
func Serve(ctx context.Context, group *dgroup.Group, addr string, collectors ...prometheus.Collector) {
	group.Go("metrics", func(ctx context.Context) error {
		reg := prometheus.NewRegistry()
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return err
			}
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		sc := &dhttp.ServerConfig{Handler: mux}
		return sc.ListenAndServe(ctx, addr)
	})
}
