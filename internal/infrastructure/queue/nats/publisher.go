package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

// Publisher fans user notifications out on a NATS subject. Delivery channels
// (email, push, websocket gateways) subscribe downstream.
type Publisher struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewPublisher(url, subject string, options Options) (*Publisher, error) {
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

	conn, err := nats.Connect(
		url,
		nats.Name("legal-search-engine"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
	}, nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

func (p *Publisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	msg, err := notificationMessage(p.subject, n)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := p.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if p.executor != nil {
		err = p.executor.Execute(ctx, publishOperation, call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

// notificationMessage publishes on "<subject>.<kind>" so consumers can
// subscribe to one kind or to "<subject>.>". The message id header only
// deduplicates when a JetStream stream captures the subject; core
// subscribers can see a retried publish twice.
func notificationMessage(subject string, n domain.Notification) (*nats.Msg, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	msg := nats.NewMsg(subject + "." + string(n.Kind))
	msg.Data = body
	msg.Header.Set(nats.MsgIdHdr, n.ID)
	msg.Header.Set("User-Id", n.UserID)
	return msg, nil
}
