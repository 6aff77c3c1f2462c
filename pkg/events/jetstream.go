package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/internal/metrics"
)

const (
	subjectPrefix = "custody.events"
	streamMaxAge  = 7 * 24 * time.Hour
)

// Subject returns custody.events.<type>.<chain>.
func Subject(evt Event) string {
	return fmt.Sprintf("%s.%s.%s", subjectPrefix, evt.Type, strings.ToLower(evt.Chain.String()))
}

// JetStreamPublisher publishes events to a NATS JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewJetStreamPublisher connects to url and ensures the events stream exists.
func NewJetStreamPublisher(ctx context.Context, url, stream string, logger *zap.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("custody"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	if err := EnsureStream(ctx, js, stream); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("Connected to NATS JetStream", zap.String("url", url), zap.String("stream", stream))
	return &JetStreamPublisher{nc: nc, js: js, logger: logger}, nil
}

// EnsureStream creates or updates the stream that captures custody.events.>.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    streamMaxAge,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}
	return nil
}

// Publish implements Publisher.
func (p *JetStreamPublisher) Publish(ctx context.Context, evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Warn("Failed to marshal event", zap.String("type", evt.Type), zap.Error(err))
		metrics.EventsPublished.WithLabelValues(evt.Type, "failed").Inc()
		return
	}

	if _, err := p.js.Publish(ctx, Subject(evt), data); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("type", evt.Type),
			zap.String("chain", evt.Chain.String()),
			zap.Error(err))
		metrics.EventsPublished.WithLabelValues(evt.Type, "failed").Inc()
		return
	}
	metrics.EventsPublished.WithLabelValues(evt.Type, "published").Inc()
}

// Close drains the NATS connection.
func (p *JetStreamPublisher) Close() error {
	return p.nc.Drain()
}
