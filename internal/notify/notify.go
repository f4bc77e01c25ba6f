// Package notify fans committed registry changes out to subscribers.
package notify

import (
	"sync"

	"go.uber.org/zap"

	"github.com/blackwell-systems/appregistry/internal/store"
)

// Handler consumes one change record. Handlers run on the subscriber's own
// goroutine and may call back into the registry. Each subscriber receives
// its own copy of the record.
type Handler func(change *store.ChangeRecord)

// Notifier is a store.Publisher that delivers every published record to
// every subscriber exactly once and in publish order. Publish never blocks
// on a handler: each subscriber owns an unbounded queue drained by its own
// goroutine.
type Notifier struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	logger *zap.Logger
}

// New creates a Notifier. A nil logger discards output.
func New(logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

// Subscribe registers handler for every record published from now on.
// The returned function cancels the subscription; records still queued for
// it are dropped. It is safe to call more than once and from inside the
// handler.
func (n *Notifier) Subscribe(handler Handler) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return func() {}
	}

	n.nextID++
	id := n.nextID
	sub := newSubscriber(handler, n.logger.With(zap.Uint64("subscriber", id)))
	n.subs[id] = sub
	go sub.run()

	return func() {
		n.mu.Lock()
		s, ok := n.subs[id]
		delete(n.subs, id)
		n.mu.Unlock()
		if ok {
			s.stop(false)
		}
	}
}

// Publish implements store.Publisher.
func (n *Notifier) Publish(change *store.ChangeRecord) {
	if change.Empty() {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	for _, sub := range n.subs {
		sub.enqueue(change.Clone())
	}
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Close stops accepting records, lets every subscriber drain its queue and
// waits for the handlers to return. It must not be called from a handler.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := n.subs
	n.subs = make(map[uint64]*subscriber)
	n.mu.Unlock()

	for _, sub := range subs {
		sub.stop(true)
	}
	for _, sub := range subs {
		<-sub.done
	}
}

type subscriber struct {
	handler Handler
	logger  *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*store.ChangeRecord
	stopped bool
	done    chan struct{}
}

func newSubscriber(handler Handler, logger *zap.Logger) *subscriber {
	s := &subscriber{
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) enqueue(change *store.ChangeRecord) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, change)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// stop ends the subscription. With drain set, already queued records are
// still delivered.
func (s *subscriber) stop(drain bool) {
	s.mu.Lock()
	s.stopped = true
	if !drain {
		s.queue = nil
	}
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		next := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(next)
	}
}

func (s *subscriber) deliver(change *store.ChangeRecord) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("change handler panicked", zap.Any("panic", r))
		}
	}()
	s.handler(change)
}
