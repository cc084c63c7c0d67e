// Package delivery implements the out-of-band delivery channel contract:
// the sink C7 uses to send files and text produced by an async CLI job back
// to the conversation that triggered it, and that C5 uses for the rarer
// in-band case of a synchronous CLI call producing output files.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/relaylane/router/internal/bus"
	"github.com/relaylane/router/internal/logging"
)

// Options carries the optional attachment fields of a delivery request.
type Options struct {
	Media    string `json:"media,omitempty"`
	Caption  string `json:"caption,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Request is one delivery channel call.
type Request struct {
	AccountID  string  `json:"accountId"`
	Recipient  string  `json:"recipient"`
	Platform   string  `json:"platform"`
	Content    string  `json:"content"`
	Options    Options `json:"options,omitempty"`
	Source     string  `json:"source"`
}

// Result is what Enqueue returns.
type Result struct {
	DeliveryID string `json:"deliveryId"`
	Sent       bool   `json:"sent"`
	Queued     bool   `json:"queued"`
}

// Sink is the delivery channel contract: enqueue(...) -> {deliveryId, sent, queued}.
type Sink interface {
	Enqueue(ctx context.Context, req Request) (*Result, error)
}

// Sender performs the actual platform-specific send. The reference Queue
// below is transport-agnostic; swap in a real Sender (Slack, webhook,
// whatever the deployment's platform field names) without touching C7.
type Sender interface {
	Send(ctx context.Context, req Request) error
}

// LogSender is the reference Sender: it logs the delivery and always
// succeeds. Good enough to exercise the queue end to end without standing
// up a real outbound channel.
type LogSender struct {
	log *logging.Logger
}

// NewLogSender builds a LogSender.
func NewLogSender(log *logging.Logger) *LogSender {
	if log == nil {
		log = logging.Nop()
	}
	return &LogSender{log: log.WithComponent("delivery")}
}

// Send logs the delivery at info and returns nil.
func (s *LogSender) Send(ctx context.Context, req Request) error {
	s.log.WithField("recipient", req.Recipient).WithField("platform", req.Platform).WithField("source", req.Source).Info("delivered")
	return nil
}

const defaultQueueBuffer = 256

// publisher is the narrow view of *bus.Bus the queue needs.
type publisher interface {
	Publish(event bus.Event) error
}

// item pairs a Request with the deliveryId Enqueue already handed back,
// since the send itself happens later on the drain goroutine.
type item struct {
	req        Request
	deliveryID string
}

// Queue is the reference delivery sink: Enqueue never blocks past the
// buffer, a single goroutine drains it through Sender, and the outcome is
// published to the bus as EventAsyncJobDelivered/EventAsyncJobFailed so
// callers that already returned (C7's case) can still be notified.
type Queue struct {
	ch     chan item
	sender Sender
	bus    publisher
	log    *logging.Logger
	done   chan struct{}

	wg      sync.WaitGroup
	sentCnt atomic.Int64
}

// NewQueue builds a Queue and starts its drain goroutine. Close stops it.
func NewQueue(sender Sender, b publisher, log *logging.Logger) *Queue {
	if log == nil {
		log = logging.Nop()
	}
	q := &Queue{
		ch:     make(chan item, defaultQueueBuffer),
		sender: sender,
		bus:    b,
		log:    log.WithComponent("delivery"),
		done:   make(chan struct{}),
	}
	q.wg.Add(1)
	go q.drain()
	return q
}

// Enqueue implements the Sink contract. The queue always reports
// sent=false; queued reflects whether the buffer had room. Whether the
// platform send completed is reported asynchronously via the bus.
func (q *Queue) Enqueue(ctx context.Context, req Request) (*Result, error) {
	if req.Recipient == "" && req.AccountID == "" {
		return nil, fmt.Errorf("delivery request needs a recipient or accountId")
	}
	id := uuid.NewString()
	select {
	case q.ch <- item{req: req, deliveryID: id}:
		return &Result{DeliveryID: id, Sent: false, Queued: true}, nil
	default:
		return &Result{DeliveryID: id, Sent: false, Queued: false}, fmt.Errorf("delivery queue full")
	}
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		select {
		case it := <-q.ch:
			q.deliver(it)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) deliver(it item) {
	ctx := context.Background()
	err := q.sender.Send(ctx, it.req)
	evt := bus.NewEvent(bus.EventAsyncJobDelivered)
	if err != nil {
		evt = bus.NewEvent(bus.EventAsyncJobFailed)
		evt.Message = err.Error()
		q.log.WithField("deliveryId", it.deliveryID).WithError(err).Warn("delivery failed")
	} else {
		q.sentCnt.Add(1)
	}
	evt.Blackboard = map[string]any{
		"deliveryId": it.deliveryID,
		"request":    it.req,
	}
	if q.bus != nil {
		_ = q.bus.Publish(evt)
	}
}

// Close stops the drain goroutine and waits for the in-flight send, if any,
// to finish. Anything still buffered is dropped.
func (q *Queue) Close() {
	close(q.done)
	q.wg.Wait()
}
