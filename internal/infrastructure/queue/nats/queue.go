// Package nats carries asynchronous run requests between the API and the
// workers and announces finished runs.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/query-reformulator/internal/core/domain"
	"github.com/kirillkom/query-reformulator/internal/infrastructure/resilience"
)

const completedSuffix = ".completed"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
	onReject func(reason string)
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
	// OnReject is told about every delivered message that could not be
	// turned into a run request.
	OnReject func(reason string)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
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
		nats.Name("query-reformulator"),
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
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
		onReject: options.OnReject,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishRun(ctx context.Context, req domain.RunRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}
	return q.publish(ctx, "publish run", q.subject, payload)
}

// PublishRunCompleted announces a finished run without its results.
func (q *Queue) PublishRunCompleted(ctx context.Context, run *domain.ReformulationRun) error {
	summary := *run
	summary.Results = nil
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	return q.publish(ctx, "publish run completion", q.subject+completedSuffix, payload)
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
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return publishError(op, err)
}

func (q *Queue) SubscribeRuns(ctx context.Context, handler func(context.Context, domain.RunRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		req, reason, err := decodeRunRequest(msg.Data)
		if err != nil {
			q.logger.Error("run_request_rejected", "reason", reason, "bytes", len(msg.Data), "error", err)
			if q.onReject != nil {
				q.onReject(reason)
			}
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, req); err != nil {
			q.logger.Error("run_handler_failed", "run_id", req.ID, "method", req.Config.Name, "error", err)
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
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// decodeRunRequest also returns a short rejection reason for metrics.
func decodeRunRequest(data []byte) (domain.RunRequest, string, error) {
	var req domain.RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.RunRequest{}, "malformed", domain.WrapError(domain.ErrInvalidInput, "decode run request", err)
	}
	if req.ID == "" || req.Config.Name == "" {
		return domain.RunRequest{}, "incomplete", domain.WrapError(domain.ErrInvalidInput, "decode run request", errors.New("id and method are required"))
	}
	if len(req.Queries) == 0 {
		return domain.RunRequest{}, "empty", domain.WrapError(domain.ErrInvalidInput, "decode run request", errors.New("no queries"))
	}
	return req, "", nil
}
