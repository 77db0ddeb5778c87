package telegram

import (
	"context"
	"errors"
	"time"

	"plugbot/internal/clock"
	"plugbot/pkg/bot"

	"go.uber.org/zap"
)

const (
	DefaultPollTimeout = 30 * time.Second
	minBackoff         = time.Second
	maxBackoff         = 30 * time.Second
)

// Poller fetches updates with getUpdates and forwards the normalized ones.
type Poller struct {
	client  *Client
	timeout time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	offset  int64
}

// NewPoller creates a poller. A zero timeout uses DefaultPollTimeout.
func NewPoller(client *Client, timeout time.Duration, clk clock.Clock, logger *zap.Logger) *Poller {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Poller{
		client:  client,
		timeout: timeout,
		clock:   clk,
		logger:  logger.Named("poller"),
	}
}

// Offset returns the next update id the poller will request.
func (p *Poller) Offset() int64 {
	return p.offset
}

// Run polls until ctx is cancelled. Failed requests are retried with
// exponential backoff, honouring retry_after from the service.
func (p *Poller) Run(ctx context.Context, out chan<- *bot.Update) error {
	p.logger.Info("Starting long polling", zap.Duration("timeout", p.timeout))
	backoff := minBackoff

	for {
		results, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			wait := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			p.logger.Warn("getUpdates failed, retrying",
				zap.Error(err),
				zap.Duration("wait", wait))

			select {
			case <-ctx.Done():
				return nil
			case <-p.clock.After(wait):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff

		for _, r := range results {
			if id := r.Get("update_id").Int(); id >= p.offset {
				p.offset = id + 1
			}

			u, err := Normalize([]byte(r.Raw))
			if err != nil {
				p.logger.Debug("Skipping update",
					zap.Int64("update_id", r.Get("update_id").Int()),
					zap.Error(err))
				continue
			}

			select {
			case out <- u:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
