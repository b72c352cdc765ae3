// Package events forwards finalized transcripts and session lifecycle
// events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/voxwire/voxwire/internal/logging"
	"github.com/voxwire/voxwire/internal/metrics"
	"github.com/voxwire/voxwire/internal/session"
)

// Publisher implements session.Publisher on two Kafka topics: one for
// finalized transcript windows, one for session lifecycle events. With no
// brokers configured it runs in log-only mode and publishing is a no-op.
type Publisher struct {
	writerFinal  *kafka.Writer
	writerEvents *kafka.Writer
	topicFinal   string
	topicEvents  string
	enabled      bool
	prom         *metrics.Metrics
	log          zerolog.Logger
}

// Config holds the Kafka connection settings.
type Config struct {
	Brokers     []string
	TopicFinal  string
	TopicEvents string
}

func New(cfg Config) *Publisher {
	p := &Publisher{
		topicFinal:  cfg.TopicFinal,
		topicEvents: cfg.TopicEvents,
		prom:        metrics.Default(),
		log:         logging.WithComponent("events"),
	}

	if len(cfg.Brokers) == 0 {
		p.log.Info().Msg("kafka disabled, publishing in log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{Dial: dialer.DialFunc}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	p.writerFinal = newWriter(cfg.TopicFinal)
	p.writerEvents = newWriter(cfg.TopicEvents)
	p.enabled = true

	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic_final", cfg.TopicFinal).
		Str("topic_events", cfg.TopicEvents).
		Msg("kafka publisher initialized")

	return p
}

// PublishFinal forwards one finalized transcript window, keyed by session so
// a session's windows land on one partition in order.
func (p *Publisher) PublishFinal(ctx context.Context, chunk session.TranscriptChunk) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, "transcript_final", chunk.SessionID, chunk)
}

// PublishSessionEnded forwards the terminal record of a session.
func (p *Publisher) PublishSessionEnded(ctx context.Context, result session.FinalResult) error {
	return p.publish(ctx, p.writerEvents, p.topicEvents, "session_ended", result.SessionID, result)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, kind, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.prom.PublishErrors.Inc()
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}

	p.log.Debug().
		Str("topic", topic).
		Str("kind", kind).
		Str("session_id", key).
		Msg("publishing event")

	if !p.enabled {
		p.prom.EventsPublished.WithLabelValues(kind).Inc()
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(kind)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.prom.PublishErrors.Inc()
		p.log.Error().Err(err).Str("topic", topic).Str("session_id", key).Msg("kafka write failed")
		return fmt.Errorf("write %s event: %w", kind, err)
	}

	p.prom.EventsPublished.WithLabelValues(kind).Inc()
	return nil
}

// Close flushes and closes both writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			err = e
		}
	}
	if p.writerEvents != nil {
		if e := p.writerEvents.Close(); e != nil {
			err = e
		}
	}
	return err
}
