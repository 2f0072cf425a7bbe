package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OutboxStore is what the dispatcher needs from the outbox table.
type OutboxStore interface {
	Claim(ctx context.Context, limit int) ([]Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, lastError string, next time.Time, final bool) error
}

type DispatcherOptions struct {
	BatchSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// CodeTTL bounds the age of OTP and password reset mails. Older rows
	// are settled as failed without sending. Zero disables the check.
	CodeTTL time.Duration
}

// Dispatcher delivers outbox rows at least once. A crash between sending and
// MarkSent causes a resend after the claim lease expires.
type Dispatcher struct {
	store    OutboxStore
	mailer   Mailer
	renderer *Renderer
	opts     DispatcherOptions
	logger   *zap.Logger
	now      func() time.Time
}

func NewDispatcher(store OutboxStore, mailer Mailer, renderer *Renderer, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Hour
	}
	return &Dispatcher{store: store, mailer: mailer, renderer: renderer, opts: opts, logger: logger, now: time.Now}
}

type DeliveryResult struct {
	Sent    int
	Failed  int
	Expired int
}

// DeliverPending sends one batch of due notifications.
func (d *Dispatcher) DeliverPending(ctx context.Context) (DeliveryResult, error) {
	var res DeliveryResult

	batch, err := d.store.Claim(ctx, d.opts.BatchSize)
	if err != nil {
		return res, err
	}

	for _, n := range batch {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		if d.expired(n) {
			res.Expired++
			if err := d.store.MarkFailed(ctx, n.ID, "code expired before delivery", d.now(), true); err != nil {
				d.logger.Error("outbox expire failed", zap.String("id", n.ID), zap.Error(err))
			}
			continue
		}

		sendErr := d.deliver(ctx, n)
		if sendErr == nil {
			if err := d.store.MarkSent(ctx, n.ID); err != nil {
				d.logger.Error("outbox mark sent failed", zap.String("id", n.ID), zap.Error(err))
			}
			res.Sent++
			continue
		}

		res.Failed++
		attempt := n.Attempts + 1
		final := attempt >= d.opts.MaxAttempts
		next := d.now().Add(d.backoff(attempt))

		d.logger.Warn("outbox delivery failed",
			zap.String("id", n.ID),
			zap.String("kind", string(n.Kind)),
			zap.Int("attempt", attempt),
			zap.Bool("final", final),
			zap.Error(sendErr),
		)
		if err := d.store.MarkFailed(ctx, n.ID, sendErr.Error(), next, final); err != nil {
			d.logger.Error("outbox mark failed failed", zap.String("id", n.ID), zap.Error(err))
		}
	}

	return res, nil
}

func (d *Dispatcher) expired(n Notification) bool {
	if d.opts.CodeTTL <= 0 || !n.Kind.carriesCode() || n.CreatedAt.IsZero() {
		return false
	}
	return d.now().Sub(n.CreatedAt) > d.opts.CodeTTL
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) error {
	msg, err := d.renderer.Render(n)
	if err != nil {
		return err
	}
	return d.mailer.Send(ctx, msg)
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	b := d.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		b *= 2
		if b >= d.opts.MaxBackoff {
			return d.opts.MaxBackoff
		}
	}
	return b
}
