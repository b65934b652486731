// Package telemetry installs the process meter provider and serves it for
// Prometheus scraping.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"pttype/internal/logging"
)

// Telemetry owns the meter provider and the optional scrape endpoint.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
	server   *http.Server
	addr     string
}

// Setup registers a meter provider backed by a dedicated Prometheus registry
// and starts serving /metrics on bind when bind is non-empty.
func Setup(ctx context.Context, serviceName, version, bind string) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	t := &Telemetry{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	if bind = strings.TrimSpace(bind); bind != "" {
		listener, err := net.Listen("tcp", bind)
		if err != nil {
			_ = provider.Shutdown(ctx)
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", t.handler)
		t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		t.addr = listener.Addr().String()
		go func() {
			if err := t.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Warnw("metrics server stopped", "error", err)
			}
		}()
		logging.Infow("telemetry initialized", "exporter", "prometheus", "bind", t.addr)
	} else {
		logging.Infow("telemetry initialized", "exporter", "prometheus")
	}
	return t, nil
}

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// Addr is the bound scrape address, or "" when not serving.
func (t *Telemetry) Addr() string {
	return t.addr
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
