package usage

import (
	"context"

	"github.com/relaylane/router/internal/bus"
	"github.com/relaylane/router/internal/logging"
	"github.com/relaylane/router/internal/routing"
)

// defaultQueueBuffer sizes the Queue's internal channel. Past this many
// unwritten records the drain goroutine is falling behind the bus and
// further submissions are dropped rather than blocking the request path.
const defaultQueueBuffer = 256

// Writer persists a UsageRecord. The reference implementation in
// internal/store writes to the usage table described in §6.4; tests can
// substitute an in-memory recorder.
type Writer interface {
	Write(ctx context.Context, record routing.UsageRecord) error
}

// subscriber is the narrow view of *bus.Bus the queue needs.
type subscriber interface {
	Subscribe(eventType bus.EventType, handler func(bus.Event)) bus.SubscriptionID
}

// Queue is the background-draining usage write path: one buffered channel,
// one goroutine, a non-blocking submit. It subscribes to the bus for
// EventUsageRecorded and is the "usage queue's background drain" that
// bus/events.go's doc comment refers to.
type Queue struct {
	ch     chan routing.UsageRecord
	writer Writer
	log    *logging.Logger
	done   chan struct{}
}

// NewQueue builds a Queue, subscribes it to bus for EventUsageRecorded, and
// starts its drain goroutine. Call Close to stop the goroutine.
func NewQueue(b subscriber, writer Writer, log *logging.Logger) *Queue {
	if log == nil {
		log = logging.Nop()
	}
	q := &Queue{
		ch:     make(chan routing.UsageRecord, defaultQueueBuffer),
		writer: writer,
		log:    log.WithComponent("usage"),
		done:   make(chan struct{}),
	}
	b.Subscribe(bus.EventUsageRecorded, q.onEvent)
	go q.drain()
	return q
}

func (q *Queue) onEvent(event bus.Event) {
	record, ok := event.Blackboard["usage"].(routing.UsageRecord)
	if !ok {
		q.log.Warn("usage.recorded event missing usage payload")
		return
	}
	q.Submit(record)
}

// Submit enqueues record without blocking. A full buffer drops the record
// and logs at debug rather than backing up the caller.
func (q *Queue) Submit(record routing.UsageRecord) {
	select {
	case q.ch <- record:
	default:
		q.log.WithField("userId", record.UserID).Debug("usage queue full, dropping record")
	}
}

func (q *Queue) drain() {
	for {
		select {
		case record := <-q.ch:
			if q.writer == nil {
				continue
			}
			if err := q.writer.Write(context.Background(), record); err != nil {
				q.log.WithError(err).Debug("usage record write failed")
			}
		case <-q.done:
			return
		}
	}
}

// Close stops the drain goroutine. In-flight records already read off the
// channel are written; anything still buffered is dropped.
func (q *Queue) Close() {
	close(q.done)
}
