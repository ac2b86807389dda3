package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/receipt-splitter/internal/core/domain"
	"github.com/kirillkom/receipt-splitter/internal/infrastructure/resilience"
)

const consumerGroup = "splitters"

// Queue carries split jobs to workers and progress events back out.
type Queue struct {
	conn          *nats.Conn
	subject       string
	eventsSubject string
	executor      *resilience.Executor
	logger        *slog.Logger
}

type Options struct {
	EventsSubject        string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "nats connect", errors.New("subject is empty"))
	}
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("receipt-splitter"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("nats connect", fmt.Errorf("connect nats: %w", err))
	}
	return &Queue{
		conn:          conn,
		subject:       subject,
		eventsSubject: options.EventsSubject,
		executor:      options.ResilienceExecutor,
		logger:        logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

type splitJob struct {
	Path       string    `json:"path"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeJob(path string, at time.Time) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode job", errors.New("document path is empty"))
	}
	return json.Marshal(splitJob{Path: path, EnqueuedAt: at.UTC()})
}

// decodeJob accepts the JSON envelope and, for manual `nats pub` use, a bare path.
func decodeJob(data []byte) (string, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode job", errors.New("empty message"))
	}
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	var job splitJob
	if err := json.Unmarshal(data, &job); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode job", err)
	}
	if job.Path == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "decode job", errors.New("job has no path"))
	}
	return job.Path, nil
}

func (q *Queue) EnqueueDocument(ctx context.Context, path string) error {
	payload, err := encodeJob(path, time.Now())
	if err != nil {
		return err
	}
	return q.publish(ctx, "nats.enqueue", q.subject, payload)
}

func (q *Queue) PublishProgress(ctx context.Context, p domain.Progress) error {
	if q.eventsSubject == "" {
		return nil
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return q.publish(ctx, "nats.progress", q.eventsSubject, payload)
}

func (q *Queue) publish(ctx context.Context, op, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, op, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(op, err)
}

// ConsumeDocuments delivers jobs to handler one at a time until ctx ends,
// then drains the subscription.
func (q *Queue) ConsumeDocuments(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, consumerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		path, err := decodeJob(msg.Data)
		if err != nil {
			q.logger.Warn("job_rejected", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, path); err != nil {
			q.logger.Error("job_failed", "document", path, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
