package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fides/pkg/platform/audit"
)

// Sink is the destination audit events are shipped to.
type Sink interface {
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// Publisher buffers audit events and ships them asynchronously so the
// exchange flows never block on kafka. Events are dropped, with a log
// line, when the buffer is full; auditing is best effort here.
type Publisher struct {
	sink    Sink
	topic   string
	log     *slog.Logger
	events  chan audit.Event
	timeout time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

type Option func(*Publisher)

// WithBuffer overrides the default event buffer size.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		p.events = make(chan audit.Event, n)
	}
}

// WithTimeout overrides the per-event produce timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.timeout = d
	}
}

// New starts a publisher draining into sink on topic.
func New(sink Sink, topic string, log *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		sink:    sink,
		topic:   topic,
		log:     log,
		events:  make(chan audit.Event, 256),
		timeout: 5 * time.Second,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish enqueues an event. It never blocks.
func (p *Publisher) Publish(event audit.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case p.events <- event:
	default:
		p.log.Warn("audit buffer full, dropping event", "action", event.Action, "exchange_id", event.ExchangeID)
	}
}

// Close drains the buffer and stops the worker.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.events:
			p.ship(event)
		case <-p.stop:
			for {
				select {
				case event := <-p.events:
					p.ship(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) ship(event audit.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("marshal audit event", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.sink.Produce(ctx, p.topic, event.ExchangeID, payload); err != nil {
		p.log.Error("publish audit event", "error", err, "action", event.Action)
	}
}
