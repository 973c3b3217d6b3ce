package maintenance

import (
	"context"
	"time"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// DefaultPollInterval is the pending-operation poll period.
const DefaultPollInterval = 15 * time.Second

// Poller periodically asks the platform for pending operations.
type Poller struct {
	pub      capability.Publisher
	interval time.Duration
	logger   capability.Logger
}

// NewPoller creates a Poller publishing through pub. A zero interval
// selects DefaultPollInterval.
func NewPoller(pub capability.Publisher, interval time.Duration, logger capability.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = capability.NoopLogger()
	}
	return &Poller{pub: pub, interval: interval, logger: logger}
}

// Run publishes message 500 once per interval until ctx is cancelled.
// Publish failures are logged and the loop carries on.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	msg := smartrest.New(smartrest.MsgPendingOperations)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if ctx.Err() != nil {
			return
		}
		if err := p.pub.Publish(msg, 0); err != nil {
			p.logger.Warn("pending operations poll failed", "error", err)
			continue
		}
		p.logger.Debug("polled pending operations")
	}
}
