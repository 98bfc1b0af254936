// Package observe provides application-wide observability primitives for the
// baja voice relay: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all baja metrics.
const meterName = "github.com/appujet/baja"

// Metrics holds all OpenTelemetry metric instruments for the audio engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// FramesSent counts voice packets transmitted, including silence.
	// Attribute: guild_id.
	FramesSent metric.Int64Counter

	// FramesNulled counts playing tracks that had no frame ready on a tick,
	// plus speak-loop ticks lost to an encode, E2EE or seal failure.
	// Attribute: guild_id.
	FramesNulled metric.Int64Counter

	// UDPDrops counts packets discarded on send deadline.
	UDPDrops metric.Int64Counter

	// ReaderReopens counts range re-requests issued by remote readers.
	ReaderReopens metric.Int64Counter

	// ReaderSocketSkips counts forward seeks served by draining the live
	// stream instead of reopening.
	ReaderSocketSkips metric.Int64Counter

	// DecodeErrors counts recoverable per-packet decode failures.
	// Attribute: codec.
	DecodeErrors metric.Int64Counter

	// ActiveGuilds tracks the number of live guild engines.
	ActiveGuilds metric.Int64UpDownCounter

	// ActiveTracks tracks the number of live tracks across all guilds.
	ActiveTracks metric.Int64UpDownCounter

	// PoolBytes records the sample-pool occupancy in bytes.
	PoolBytes metric.Int64Gauge

	// TickDuration tracks time spent producing one 20 ms voice packet
	// (mix + filters + encode + seal + send).
	TickDuration metric.Float64Histogram
}

// tickBuckets defines histogram bucket boundaries (in seconds) around the
// 20 ms budget of one speak-loop tick.
var tickBuckets = []float64{
	0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("baja.frames.sent",
		metric.WithDescription("Voice packets transmitted, including silence frames."),
	); err != nil {
		return nil, err
	}
	if met.FramesNulled, err = m.Int64Counter("baja.frames.nulled",
		metric.WithDescription("Playing tracks with no frame ready on a tick, plus ticks lost to encode, E2EE or seal failures."),
	); err != nil {
		return nil, err
	}
	if met.UDPDrops, err = m.Int64Counter("baja.udp.drops",
		metric.WithDescription("Voice packets discarded on UDP send deadline."),
	); err != nil {
		return nil, err
	}
	if met.ReaderReopens, err = m.Int64Counter("baja.reader.reopens",
		metric.WithDescription("Range re-requests issued by remote readers."),
	); err != nil {
		return nil, err
	}
	if met.ReaderSocketSkips, err = m.Int64Counter("baja.reader.socket_skips",
		metric.WithDescription("Forward seeks served over the live stream."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("baja.decode.errors",
		metric.WithDescription("Recoverable per-packet decode failures by codec."),
	); err != nil {
		return nil, err
	}
	if met.ActiveGuilds, err = m.Int64UpDownCounter("baja.active_guilds",
		metric.WithDescription("Number of live guild engines."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTracks, err = m.Int64UpDownCounter("baja.active_tracks",
		metric.WithDescription("Number of live tracks across all guilds."),
	); err != nil {
		return nil, err
	}
	if met.PoolBytes, err = m.Int64Gauge("baja.pool.bytes",
		metric.WithDescription("Sample pool occupancy."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("baja.tick.duration",
		metric.WithDescription("Time spent producing one 20 ms voice packet."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(tickBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// GuildAttr returns the standard guild attribute set used on per-guild
// instruments.
func GuildAttr(guildID string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("guild_id", guildID))
}

// RecordDecodeError records one recoverable decode failure for codec.
func (m *Metrics) RecordDecodeError(ctx context.Context, codec string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("codec", codec)))
}
