// Package telemetry wires OpenTelemetry metrics for the proxy: a
// gateway-start counter, a request-duration histogram, and an error-count
// counter. Metrics are collected by an in-process manual reader with no
// exporter attached, which keeps the dependency surface to otel/sdk/metric
// alone; nothing is exported on a schedule.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Meter holds the counters/histograms this proxy emits.
type Meter struct {
	provider *sdkmetric.MeterProvider

	gatewayStarts  metric.Int64Counter
	requestDurations metric.Float64Histogram
	errorCount     metric.Int64Counter
}

// New builds a Meter backed by an in-process manual reader. exportInterval
// defaults to 60s when not positive but is not otherwise used: no periodic
// export runs.
func New(exportInterval time.Duration) (*Meter, error) {
	if exportInterval <= 0 {
		exportInterval = 60 * time.Second
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := provider.Meter("mcp-proxy")

	gatewayStarts, err := m.Int64Counter("mcp_proxy_gateway_starts_total",
		metric.WithDescription("Number of times the proxy process has started"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: gateway start counter: %w", err)
	}

	requestDurations, err := m.Float64Histogram("mcp_proxy_request_duration_seconds",
		metric.WithDescription("Downstream request duration in seconds"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: request duration histogram: %w", err)
	}

	errorCount, err := m.Int64Counter("mcp_proxy_errors_total",
		metric.WithDescription("Number of request-forwarding errors"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: error counter: %w", err)
	}

	return &Meter{
		provider:         provider,
		gatewayStarts:    gatewayStarts,
		requestDurations: requestDurations,
		errorCount:       errorCount,
	}, nil
}

// RecordGatewayStart increments the start counter, called once from
// cmd/mcp-proxy's serve command.
func (m *Meter) RecordGatewayStart(ctx context.Context) {
	m.gatewayStarts.Add(ctx, 1)
}

// RecordRequestDuration records one downstream request's latency, tagged
// by server and method.
func (m *Meter) RecordRequestDuration(ctx context.Context, serverID, method string, d time.Duration) {
	m.requestDurations.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("server_id", serverID), attribute.String("method", method)))
}

// RecordError increments the error counter, tagged by server and error
// kind.
func (m *Meter) RecordError(ctx context.Context, serverID, kind string) {
	m.errorCount.Add(ctx, 1,
		metric.WithAttributes(attribute.String("server_id", serverID), attribute.String("kind", kind)))
}

// Shutdown flushes and releases the meter provider.
func (m *Meter) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
