package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skinsociete/notification-engine/internal/models"
)

// NotifyRequest asks for a single-user templated send.
type NotifyRequest struct {
	UserID     string
	TemplateID string
	Vars       map[string]string
	Priority   models.Priority
}

// Notifier accepts notification requests from the behavior tracker.
// Implementations must not report delivery failures back to the caller.
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest)
}

// Sender is the dispatch entry point shared by the notifier, sweeps and handlers.
type Sender interface {
	Send(ctx context.Context, req DispatchRequest) ([]DeliveryResult, error)
}

// AsyncNotifier queues requests and dispatches them from a small worker pool,
// keeping push latency off the event path.
type AsyncNotifier struct {
	sender  Sender
	queue   chan NotifyRequest
	workers int
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewAsyncNotifier(sender Sender, workers, queueSize int) *AsyncNotifier {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &AsyncNotifier{
		sender:  sender,
		queue:   make(chan NotifyRequest, queueSize),
		workers: workers,
		timeout: 30 * time.Second,
	}
}

// Start launches the workers. They exit once Stop drains the queue.
func (n *AsyncNotifier) Start() {
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.run()
	}
}

// Notify enqueues the request, dropping it when the queue is full or closed.
func (n *AsyncNotifier) Notify(_ context.Context, req NotifyRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- req:
	default:
		logrus.WithFields(logrus.Fields{
			"user_id":     req.UserID,
			"template_id": req.TemplateID,
		}).Warn("Notification queue full, dropping request")
	}
}

// Stop closes the queue and waits for queued requests to be dispatched.
func (n *AsyncNotifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for req := range n.queue {
		n.dispatch(req)
	}
}

func (n *AsyncNotifier) dispatch(req NotifyRequest) {
	log := logrus.WithFields(logrus.Fields{"user_id": req.UserID, "template_id": req.TemplateID})
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Notification dispatch panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	results, err := n.sender.Send(ctx, DispatchRequest{
		Target:     models.Target{UserID: req.UserID},
		TemplateID: req.TemplateID,
		Vars:       req.Vars,
		Priority:   req.Priority,
	})
	if err != nil {
		log.WithError(err).Error("Failed to dispatch notification")
		return
	}
	log.WithField("results", len(results)).Debug("Notification dispatched")
}
