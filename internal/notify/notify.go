// Package notify moves outgoing email through the queue so request handlers
// never wait on the mail provider.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"rollbook/internal/mailer"
	"rollbook/internal/queue"
)

const typeEmail = "email"

// Notifier enqueues emails.
type Notifier struct {
	q queue.Queue
}

// NewNotifier creates a notifier publishing on q.
func NewNotifier(q queue.Queue) *Notifier {
	return &Notifier{q: q}
}

// Email enqueues msg for delivery.
func (n *Notifier) Email(ctx context.Context, msg mailer.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := n.q.Publish(ctx, queue.Message{Type: typeEmail, Body: body}); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// Observer is told about every delivery attempt.
type Observer interface {
	EmailSent(err error)
}

// Worker delivers queued emails.
type Worker struct {
	q        queue.Queue
	mail     mailer.Mailer
	log      *zap.Logger
	observer Observer
}

// NewWorker creates a worker. observer may be nil.
func NewWorker(q queue.Queue, m mailer.Mailer, log *zap.Logger, observer Observer) *Worker {
	return &Worker{q: q, mail: m, log: log, observer: observer}
}

// Run consumes until ctx is done. Failed deliveries are logged, not retried.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	w.log.Info("mail worker started")
	for msg := range messages {
		w.handle(ctx, msg)
	}
	w.log.Info("mail worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != typeEmail {
		w.log.Warn("skipping unknown message", zap.String("type", msg.Type))
		return
	}
	var m mailer.Message
	if err := json.Unmarshal(msg.Body, &m); err != nil {
		w.log.Error("decode email job", zap.Error(err))
		return
	}
	err := w.mail.Send(ctx, m)
	if w.observer != nil {
		w.observer.EmailSent(err)
	}
	if err != nil {
		w.log.Error("email delivery failed", zap.String("to", m.To), zap.Error(err))
		return
	}
	w.log.Info("email delivered", zap.String("to", m.To), zap.String("subject", m.Subject))
}
