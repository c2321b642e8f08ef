// Package notify publishes build reports to NATS.
package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/logfields"
	"git.home.luguber.info/inful/pressroom/internal/retry"
)

const defaultTimeout = 5 * time.Second

// EventType identifies the published message.
const EventType = "build.completed"

// Header names set on every message.
const (
	HeaderEventType = "Pressroom-Event"
	HeaderOutcome   = "Pressroom-Outcome"
	HeaderRunID     = "Pressroom-Run-Id"
)

// Event is the JSON payload of a build notification.
type Event struct {
	Type       string             `json:"type"`
	Outcome    string             `json:"outcome"`
	Report     *build.BuildReport `json:"report"`
	Published  time.Time          `json:"published_at"`
	DurationMS int64              `json:"duration_ms"`
}

// publisher is the subset of *nats.Conn the notifier needs.
type publisher interface {
	PublishMsg(msg *nats.Msg) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSNotifier implements build.Notifier over a core NATS connection.
type NATSNotifier struct {
	conn    publisher
	subject string
	timeout time.Duration
	retry   retry.Policy
	logger  *slog.Logger
	now     func() time.Time
}

var _ build.Notifier = (*NATSNotifier)(nil)

// NewNATSNotifier connects to cfg.NATSURL.
func NewNATSNotifier(cfg config.NotifyConfig) (*NATSNotifier, error) {
	if cfg.NATSURL == "" {
		return nil, errors.ConfigError("notify.nats_url is required").Build()
	}
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("pressroom"),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNetwork, "connect to NATS").
			Warning().
			WithRetry(errors.RetryBackoff).
			WithContext("url", cfg.NATSURL).
			Build()
	}

	n := newNotifier(conn, cfg.Subject, timeout)
	n.logger.Info("NATS notifier connected", slog.String("url", cfg.NATSURL), slog.String("subject", cfg.Subject))
	return n, nil
}

func newNotifier(conn publisher, subject string, timeout time.Duration) *NATSNotifier {
	if subject == "" {
		subject = config.DefaultNotifySubject
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		timeout: timeout,
		retry:   retry.DefaultPolicy(),
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// WithRetry replaces the publish retry policy.
func (n *NATSNotifier) WithRetry(p retry.Policy) *NATSNotifier {
	n.retry = p
	return n
}

// WithLogger sets a custom logger.
func (n *NATSNotifier) WithLogger(logger *slog.Logger) *NATSNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// Encode builds the message for report.
func (n *NATSNotifier) Encode(report *build.BuildReport) (*nats.Msg, error) {
	event := Event{
		Type:       EventType,
		Outcome:    string(report.Outcome()),
		Report:     report,
		Published:  n.now().UTC(),
		DurationMS: report.Duration.Milliseconds(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, errors.InternalError("marshal build event").WithCause(err).Build()
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set(HeaderEventType, EventType)
	msg.Header.Set(HeaderOutcome, event.Outcome)
	msg.Header.Set(HeaderRunID, report.RunID)
	return msg, nil
}

// Publish sends the report and waits for the server to acknowledge the
// flush, bounded by the configured timeout or ctx, whichever is shorter.
// Failed attempts are retried, so subscribers may see a report twice.
func (n *NATSNotifier) Publish(ctx context.Context, report *build.BuildReport) error {
	msg, err := n.Encode(report)
	if err != nil {
		return err
	}

	attempts := 0
	err = n.retry.Do(ctx, retryable, func() error {
		attempts++
		if err := n.conn.PublishMsg(msg); err != nil {
			return err
		}
		timeout := n.timeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = min(timeout, time.Until(deadline))
		}
		return n.conn.FlushTimeout(timeout)
	})
	if err != nil {
		return n.publishError(err, report).WithContext("attempts", attempts)
	}

	n.logger.Debug("Published build report",
		logfields.RunID(report.RunID),
		logfields.Outcome(string(report.Outcome())),
		slog.String("subject", n.subject),
		slog.Int("attempts", attempts))
	return nil
}

func retryable(err error) bool {
	return !stderrors.Is(err, nats.ErrConnectionClosed)
}

func (n *NATSNotifier) publishError(err error, report *build.BuildReport) *errors.ClassifiedError {
	return errors.WrapError(err, errors.CategoryNetwork, "publish build report").
		Warning().
		WithRetry(errors.RetryBackoff).
		WithContext("subject", n.subject).
		WithContext("run_id", report.RunID).
		Build()
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}
