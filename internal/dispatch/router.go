package dispatch

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/edge-agent/internal/capability"
	"github.com/nerrad567/edge-agent/internal/metrics"
	"github.com/nerrad567/edge-agent/internal/smartrest"
)

const (
	// DefaultWorkers bounds concurrent listener invocations when Options.Workers is zero.
	DefaultWorkers = 16

	// DefaultQueueSize is the number of listener tasks that may wait for a
	// worker when Options.QueueSize is zero.
	DefaultQueueSize = 256
)

// TokenStore receives security tokens carried by message 71.
type TokenStore interface {
	SetToken(token string)
}

// Logger is the logging interface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Router.
type Options struct {
	Workers   int
	QueueSize int
	Tokens    TokenStore
	Recorder  metrics.Recorder
	Logger    Logger
}

// task is one listener invocation waiting for a worker.
type task struct {
	listener capability.Registered[capability.Listener]
	msg      smartrest.Message
}

// Router decodes inbound messages and dispatches them to listeners.
//
// Tasks pass through a FIFO queue to a single feeder that hands them to
// the worker pool, so Route returns as soon as its tasks are queued and
// blocks only when both the pool and the queue are full.
//
// Thread Safety:
//   - Route, SetSnapshot and Close are safe for concurrent use.
type Router struct {
	sem      *semaphore.Weighted
	queue    chan task
	snapshot atomic.Pointer[capability.Snapshot]
	tokens   TokenStore
	rec      metrics.Recorder
	logger   Logger

	// acceptCtx is cancelled by Close and bounds waiting for queue room
	// or a worker slot.
	acceptCtx context.Context
	cancel    context.CancelFunc

	// handlerCtx is handed to listeners; it outlives Close.
	handlerCtx context.Context

	// mu orders Route's enqueue against Close's final drain.
	mu       sync.RWMutex
	closed   bool
	feedDone chan struct{}
	wg       sync.WaitGroup
}

// New creates a Router with an empty snapshot.
func New(opts Options) *Router {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	r := &Router{
		sem:        semaphore.NewWeighted(int64(workers)),
		queue:      make(chan task, queueSize),
		feedDone:   make(chan struct{}),
		tokens:     opts.Tokens,
		rec:        opts.Recorder,
		logger:     opts.Logger,
		acceptCtx:  acceptCtx,
		cancel:     cancel,
		handlerCtx: context.Background(),
	}
	r.snapshot.Store(capability.EmptySnapshot())
	go r.feed()
	return r
}

// SetSnapshot replaces the listener set used for subsequent messages.
func (r *Router) SetSnapshot(s *capability.Snapshot) {
	if s == nil {
		s = capability.EmptySnapshot()
	}
	r.snapshot.Store(s)
}

// Route decodes one payload and submits it to every listener.
//
// Message 71 stores its first field as the security token before the
// message is dispatched like any other.
//
// Returns:
//   - error: smartrest.ErrDecode for undecodable payloads, ErrClosed after Close
func (r *Router) Route(topic string, payload []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}

	msg, err := smartrest.Decode(topic, payload)
	if err != nil {
		r.rec.DecodeError()
		return err
	}

	r.logger.Debug("message received", "topic", msg.Topic, "id", msg.ID, "fields", len(msg.Fields))
	r.rec.MessageRouted(msg.ID)

	if msg.ID == smartrest.MsgDeviceToken {
		r.storeToken(msg)
	}

	for _, l := range r.snapshot.Load().Listeners() {
		if err := r.enqueue(task{listener: l, msg: copyMessage(msg)}); err != nil {
			return err
		}
	}
	return nil
}

// enqueue adds t to the queue, waiting for room when it is full.
func (r *Router) enqueue(t task) error {
	r.wg.Add(1)
	select {
	case r.queue <- t:
		return nil
	default:
	}

	r.logger.Warn("dispatch queue full, delivery paused",
		"listener", t.listener.ID,
		"id", t.msg.ID,
		"queued", len(r.queue),
	)
	select {
	case r.queue <- t:
		return nil
	case <-r.acceptCtx.Done():
		r.wg.Done()
		return ErrClosed
	}
}

// feed moves queued tasks onto the worker pool in arrival order until Close.
func (r *Router) feed() {
	defer close(r.feedDone)
	for {
		select {
		case <-r.acceptCtx.Done():
			return
		case t := <-r.queue:
			if err := r.sem.Acquire(r.acceptCtx, 1); err != nil {
				r.wg.Done()
				return
			}
			if r.acceptCtx.Err() != nil {
				r.sem.Release(1)
				r.wg.Done()
				return
			}
			go r.invoke(t.listener, t.msg)
		}
	}
}

// dropQueued discards tasks that never reached a worker.
func (r *Router) dropQueued() {
	for {
		select {
		case <-r.queue:
			r.wg.Done()
		default:
			return
		}
	}
}

func (r *Router) storeToken(msg smartrest.Message) {
	if len(msg.Fields) == 0 || msg.Fields[0] == "" {
		r.logger.Warn("token message without token", "topic", msg.Topic)
		return
	}
	if r.tokens != nil {
		r.tokens.SetToken(msg.Fields[0])
	}
	r.logger.Info("new token received")
}

// invoke runs one listener with panic isolation.
func (r *Router) invoke(l capability.Registered[capability.Listener], msg smartrest.Message) {
	defer r.wg.Done()
	defer r.sem.Release(1)
	defer func() {
		if p := recover(); p != nil {
			r.rec.Dispatch(l.ID, metrics.StatusPanic)
			r.logger.Error("listener failed",
				"listener", l.ID,
				"id", msg.ID,
				"error", fmt.Errorf("%w: %v", ErrHandlerPanic, p),
			)
		}
	}()

	if err := l.Handler.HandleOperation(r.handlerCtx, msg); err != nil {
		r.rec.Dispatch(l.ID, metrics.StatusError)
		r.logger.Warn("listener returned error", "listener", l.ID, "id", msg.ID, "error", err)
		return
	}
	r.rec.Dispatch(l.ID, metrics.StatusOK)
}

// Close stops accepting messages and discards queued tasks. Listeners
// already running keep running.
func (r *Router) Close() {
	// Cancel first: it releases a Route blocked on a full queue, which holds
	// the read lock.
	r.cancel()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	<-r.feedDone
	r.dropQueued()
}

// Wait blocks until every submitted listener invocation has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

func copyMessage(msg smartrest.Message) smartrest.Message {
	msg.Fields = slices.Clone(msg.Fields)
	return msg
}
