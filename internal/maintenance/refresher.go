package maintenance

import (
	"sync"
	"time"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

// DefaultRefreshInterval is the credential refresh period.
const DefaultRefreshInterval = 60 * time.Second

// refreshQoS is the QoS of the refresh request.
const refreshQoS = 2

// Refresher requests a fresh security token on a fixed interval.
//
// It publishes an empty message on s/uat, then waits the interval on a
// timer that Stop interrupts. Start and Stop are each effective once; a
// Refresher is not restarted after Stop.
type Refresher struct {
	pub      capability.Publisher
	interval time.Duration
	logger   capability.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewRefresher creates a stopped Refresher. A zero interval selects
// DefaultRefreshInterval.
func NewRefresher(pub capability.Publisher, interval time.Duration, logger capability.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	if logger == nil {
		logger = capability.NoopLogger()
	}
	return &Refresher{
		pub:      pub,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the refresh loop.
func (r *Refresher) Start() {
	r.startOnce.Do(func() {
		select {
		case <-r.stop:
			close(r.done)
			return
		default:
		}
		go r.loop()
	})
}

// Stop ends the loop, interrupting a pending wait.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// Done is closed once a started loop has exited.
func (r *Refresher) Done() <-chan struct{} {
	return r.done
}

func (r *Refresher) loop() {
	defer close(r.done)

	msg := smartrest.NewOn(smartrest.TopicTokenRefresh, "")
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		if err := r.pub.Publish(msg, refreshQoS); err != nil {
			r.logger.Warn("token refresh request failed", "error", err)
		} else {
			r.logger.Debug("requested token refresh")
		}

		timer := time.NewTimer(r.interval)
		select {
		case <-r.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
