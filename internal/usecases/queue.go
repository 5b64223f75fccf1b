package usecases

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"mark-operator.backend/pkg/logger"
)

// EventType identifies a webhook-driven event.
type EventType string

const (
	EventInvoiceEnqueued    EventType = "invoice-enqueued"
	EventSettlementEnqueued EventType = "settlement-enqueued"
)

// Event is one queue entry, identified by invoice id.
type Event struct {
	ID         string
	Type       EventType
	EnqueuedAt time.Time
	Attempts   int
}

// ResultKind classifies the outcome of handling an event.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFailure
	ResultInvalid
	ResultContinue
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	case ResultInvalid:
		return "invalid"
	case ResultContinue:
		return "continue"
	}
	return "unknown"
}

// Result is the handler's verdict. Failure and Continue re-enqueue the
// event after RetryAfter; Invalid drops it permanently.
type Result struct {
	Kind       ResultKind
	RetryAfter time.Duration
	Reason     string
}

// Success finishes the event.
func Success() Result { return Result{Kind: ResultSuccess} }

// Failure re-enqueues the event after the given delay.
func Failure(retryAfter time.Duration) Result {
	return Result{Kind: ResultFailure, RetryAfter: retryAfter}
}

// Invalid drops the event permanently.
func Invalid(reason string) Result { return Result{Kind: ResultInvalid, Reason: reason} }

// ContinueAfter defers the event: it is making progress but cannot finish
// yet (funds still in flight).
func ContinueAfter(retryAfter time.Duration) Result {
	return Result{Kind: ResultContinue, RetryAfter: retryAfter}
}

// EventHandler processes one event.
type EventHandler interface {
	Handle(ctx context.Context, event Event) Result
}

// EventQueue serializes work per invoice id: while an id is queued or
// in flight, later webhooks for it are dropped. Distinct ids run in
// parallel across the worker pool. Retries are unbounded; permanent
// failures must use Invalid.
type EventQueue struct {
	handler EventHandler
	workers int

	events chan Event
	mu     sync.Mutex
	claims map[string]bool
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewEventQueue creates a queue over the handler with the given worker
// parallelism.
func NewEventQueue(handler EventHandler, workers int) *EventQueue {
	if workers <= 0 {
		workers = 4
	}
	return &EventQueue{
		handler: handler,
		workers: workers,
		events:  make(chan Event, 256),
		claims:  make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Enqueue adds an event unless its id is already queued or in flight.
// Reports whether the event was accepted.
func (q *EventQueue) Enqueue(id string, eventType EventType) bool {
	q.mu.Lock()
	if q.claims[id] {
		q.mu.Unlock()
		return false
	}
	q.claims[id] = true
	q.mu.Unlock()

	select {
	case q.events <- Event{ID: id, Type: eventType, EnqueuedAt: time.Now()}:
		return true
	case <-q.done:
		q.release(id)
		return false
	}
}

// Start launches the worker pool.
func (q *EventQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop drains the workers. Pending retry timers are abandoned.
func (q *EventQueue) Stop() {
	close(q.done)
	q.wg.Wait()
}

func (q *EventQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-ctx.Done():
			return
		case event := <-q.events:
			q.process(ctx, event)
		}
	}
}

func (q *EventQueue) process(ctx context.Context, event Event) {
	result := q.handler.Handle(ctx, event)

	switch result.Kind {
	case ResultSuccess:
		q.release(event.ID)
	case ResultInvalid:
		logger.Info(ctx, "event dropped",
			zap.String("invoice_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.String("reason", result.Reason))
		q.release(event.ID)
	case ResultFailure, ResultContinue:
		q.requeue(event, result.RetryAfter)
	}
}

// requeue schedules the event again after the delay, keeping its id
// claimed so duplicate webhooks stay deduplicated meanwhile.
func (q *EventQueue) requeue(event Event, after time.Duration) {
	event.Attempts++
	time.AfterFunc(after, func() {
		select {
		case q.events <- event:
		case <-q.done:
			q.release(event.ID)
		}
	})
}

func (q *EventQueue) release(id string) {
	q.mu.Lock()
	delete(q.claims, id)
	q.mu.Unlock()
}
