package metrics

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	stampsIssued    metric.Int64Counter
	pointsAdded     metric.Float64Counter
	rewardsRedeemed metric.Int64Counter
	cardsExpired    metric.Int64Counter
	cardConflicts   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "perkly"
	}
	meter := provider.Meter(name)

	stampsIssued, err := meter.Int64Counter("perkly_stamps_issued_total")
	if err != nil {
		return nil, err
	}
	pointsAdded, err := meter.Float64Counter("perkly_points_added_total")
	if err != nil {
		return nil, err
	}
	rewardsRedeemed, err := meter.Int64Counter("perkly_rewards_redeemed_total")
	if err != nil {
		return nil, err
	}
	cardsExpired, err := meter.Int64Counter("perkly_cards_expired_total")
	if err != nil {
		return nil, err
	}
	cardConflicts, err := meter.Int64Counter("perkly_card_version_conflicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		stampsIssued:    stampsIssued,
		pointsAdded:     pointsAdded,
		rewardsRedeemed: rewardsRedeemed,
		cardsExpired:    cardsExpired,
		cardConflicts:   cardConflicts,
	}, nil
}

// RecordStampsIssued increments the issued stamp count for a program.
func (m *Metrics) RecordStampsIssued(ctx context.Context, programID string, quantity int64) {
	if m == nil {
		return
	}
	m.stampsIssued.Add(ctx, quantity, metric.WithAttributes(attribute.String("program_id", programID)))
}

// RecordPointsAdded increments the added points total for a program.
func (m *Metrics) RecordPointsAdded(ctx context.Context, programID string, points float64) {
	if m == nil {
		return
	}
	m.pointsAdded.Add(ctx, points, metric.WithAttributes(attribute.String("program_id", programID)))
}

// RecordRewardRedeemed increments the redemption count for a program.
func (m *Metrics) RecordRewardRedeemed(ctx context.Context, programID string) {
	if m == nil {
		return
	}
	m.rewardsRedeemed.Add(ctx, 1, metric.WithAttributes(attribute.String("program_id", programID)))
}

// RecordCardsExpired counts cards flipped to expired by the sweep.
func (m *Metrics) RecordCardsExpired(ctx context.Context, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.cardsExpired.Add(ctx, count)
}

// RecordCardConflict counts optimistic-lock conflicts on card updates.
func (m *Metrics) RecordCardConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.cardConflicts.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	}
}
