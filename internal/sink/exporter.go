package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/httpretry"

	"github.com/yourorg/rpc-dashboard/internal/model"
)

// Config configures the exporter
type Config struct {
	// Grafana/Influx push endpoint and basic auth credentials
	URL    string
	User   string
	APIKey string

	// Prefix is prepended to every measurement name
	Prefix string

	Timeout time.Duration

	// Optional sample stream
	KafkaBrokers []string
	KafkaTopic   string
}

// MessageWriter is the subset of *kafka.Writer the exporter uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FailureRecorder counts failed deliveries per sink
type FailureRecorder interface {
	RecordExportFailure(sink string)
}

// Exporter pushes encoded samples to Grafana and optionally to Kafka
type Exporter struct {
	cfg      Config
	client   *http.Client
	writer   MessageWriter
	failures FailureRecorder
	now      func() time.Time
}

// NewExporter creates an exporter. A Kafka writer is created when brokers are configured.
func NewExporter(cfg Config, failures FailureRecorder) *Exporter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	client := httpretry.NewCustomClient(
		&http.Client{Timeout: cfg.Timeout},
		httpretry.WithMaxRetryCount(3),
		httpretry.WithRetryPolicy(func(statusCode int, err error) bool {
			return err != nil || statusCode >= 500 || statusCode == http.StatusTooManyRequests
		}),
		httpretry.WithBackoffPolicy(func(int) time.Duration {
			return time.Second
		}),
	)

	e := &Exporter{cfg: cfg, client: client, failures: failures, now: time.Now}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		e.writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		}
		logrus.Infof("Streaming samples to Kafka topic %s", cfg.KafkaTopic)
	}
	return e
}

// WithWriter replaces the Kafka writer
func (e *Exporter) WithWriter(w MessageWriter) *Exporter {
	e.writer = w
	return e
}

// Encode renders samples with the configured prefix at the current time
func (e *Exporter) Encode(samples []model.LatencySample) ([]byte, error) {
	return Encode(e.cfg.Prefix, samples, e.now())
}

// Export delivers samples to every configured sink. Both sinks are always
// attempted; their errors are joined.
func (e *Exporter) Export(ctx context.Context, samples []model.LatencySample) error {
	if len(samples) == 0 {
		return nil
	}

	var errs []error

	lines, err := e.Encode(samples)
	if err != nil {
		errs = append(errs, err)
	} else if err := e.push(ctx, lines); err != nil {
		e.recordFailure("grafana")
		errs = append(errs, err)
	}

	if e.writer != nil {
		if err := e.publish(ctx, samples); err != nil {
			e.recordFailure("kafka")
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Exporter) push(ctx context.Context, lines []byte) error {
	if e.cfg.URL == "" || e.cfg.User == "" || e.cfg.APIKey == "" {
		logrus.Warn("Grafana push skipped: GRAFANA_URL, GRAFANA_USER or GRAFANA_API_KEY not set")
		return nil
	}

	err := requests.URL(e.cfg.URL).
		Client(e.client).
		Post().
		BasicAuth(e.cfg.User, e.cfg.APIKey).
		ContentType("text/plain").
		BodyBytes(lines).
		Fetch(ctx)
	if err != nil {
		return fmt.Errorf("grafana push: %w", err)
	}
	return nil
}

func (e *Exporter) publish(ctx context.Context, samples []model.LatencySample) error {
	msgs := make([]kafka.Message, 0, len(samples))
	for _, s := range samples {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal sample: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(s.Blockchain + "/" + s.Provider),
			Value: data,
			Time:  s.CollectedAt,
		})
	}

	if err := e.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (e *Exporter) recordFailure(sink string) {
	if e.failures != nil {
		e.failures.RecordExportFailure(sink)
	}
}

// Close flushes and closes the Kafka writer
func (e *Exporter) Close() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.Close()
}
