// Package notify реализует шину уведомлений между API и ботом поверх Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/metrics"
	"github.com/mmeshcher/storefront/internal/model"
)

// ErrInvalidMessage возвращается для сообщений шины, не соответствующих схеме.
var ErrInvalidMessage = errors.New("invalid notification message")

var validate = validator.New()

// RedisClient — часть клиента go-redis, нужная издателю.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher публикует уведомления в именованный канал.
type Publisher struct {
	client  RedisClient
	channel string
	timeout time.Duration
}

// NewPublisher создаёт издателя. Каждая публикация ограничена timeout.
func NewPublisher(client RedisClient, channel string, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Publisher{
		client:  client,
		channel: channel,
		timeout: timeout,
	}
}

// Publish сериализует уведомление и отправляет его в канал.
func (p *Publisher) Publish(ctx context.Context, n model.Notification) error {
	if n.MediaType == "" {
		n.MediaType = model.MediaNone
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish notification: %w", err)
	}

	metrics.NotificationsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Decode разбирает сообщение шины. Неизвестные поля игнорируются.
func Decode(payload []byte) (model.Notification, error) {
	var n model.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if n.MediaType == "" {
		n.MediaType = model.MediaNone
	}
	if err := validate.Struct(n); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return n, nil
}

// Sender доставляет уведомление конечному пользователю.
type Sender interface {
	Send(ctx context.Context, n model.Notification) error
}

// Listener читает канал уведомлений и передаёт сообщения отправителю.
type Listener struct {
	sender Sender
	logger *zap.Logger
}

// NewListener создаёт слушателя шины.
func NewListener(sender Sender, logger *zap.Logger) *Listener {
	return &Listener{
		sender: sender,
		logger: logger,
	}
}

// Run подписывается на канал и обрабатывает сообщения до отмены контекста.
func (l *Listener) Run(ctx context.Context, client *redis.Client, channel string) error {
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	l.logger.Info("subscribed to notification channel", zap.String("channel", channel))

	l.Consume(ctx, pubsub.Channel())

	l.logger.Info("notification listener stopped", zap.String("channel", channel))
	return nil
}

// Consume обрабатывает сообщения строго по порядку. Ошибки одного сообщения не останавливают цикл.
func (l *Listener) Consume(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *Listener) handle(ctx context.Context, payload string) {
	n, err := Decode([]byte(payload))
	if err != nil {
		metrics.NotificationsDelivered.WithLabelValues("invalid").Inc()
		l.logger.Error("invalid notification data", zap.Error(err))
		return
	}

	if err := l.sender.Send(ctx, n); err != nil {
		metrics.NotificationsDelivered.WithLabelValues("failed").Inc()
		l.logger.Error("failed to send notification", zap.Error(err), zap.Int64("userID", n.UserID))
		return
	}

	metrics.NotificationsDelivered.WithLabelValues("sent").Inc()
	l.logger.Info("sent notification", zap.Int64("userID", n.UserID))
}
