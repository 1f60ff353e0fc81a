package publisher

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	defaultQueueDepth  = 4096
	defaultRetryInit   = 100 * time.Millisecond
	defaultRetryMax    = 30 * time.Second
	defaultRetryFactor = 2.0
	defaultMaxRetries  = 20
)

// worker owns one Sink's queue and publish loop, grounded on the teacher's
// CDC publisher Worker (publisher/worker.go) but trimmed from a
// Pebble-backed durable log to an in-process bounded channel: CDC fan-out
// here is best-effort delivery to external, non-replica consumers, not part
// of the consistency-critical replication path, so an at-most-once queue
// that drops under sustained backpressure (logging when it does) is an
// acceptable simplification rather than a second durable store alongside
// internal/replication's Pebble-backed applied index.
type worker struct {
	name   string
	sink   Sink
	filter Filter
	topic  string // topic/subject prefix; "<prefix>.<database>.<table>"

	queue  chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	running     atomic.Bool
	lifecycleMu sync.Mutex

	dropped atomic.Uint64
}

func newWorker(name, topicPrefix string, sink Sink, filter Filter) *worker {
	return &worker{
		name:   name,
		sink:   sink,
		filter: filter,
		topic:  topicPrefix,
		queue:  make(chan Event, defaultQueueDepth),
	}
}

func (w *worker) enqueue(e Event) {
	if !w.filter.Match(e.Table) {
		return
	}
	select {
	case w.queue <- e:
	default:
		n := w.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			log.Warn().Str("sink", w.name).Uint64("dropped", n).Msg("publisher: queue full, dropping CDC event")
		}
	}
}

func (w *worker) start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	if w.running.Load() {
		return
	}
	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.loop()
}

func (w *worker) stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()
	if !w.running.Load() {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.running.Store(false)
	w.sink.Close()
}

func (w *worker) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case e := <-w.queue:
			if err := w.publish(e); err != nil {
				log.Error().Err(err).Str("sink", w.name).Str("table", e.Table).Msg("publisher: giving up on event after exhausting retries")
			}
		}
	}
}

func (w *worker) publish(e Event) error {
	value, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("publisher: encode event: %w", err)
	}
	topic := fmt.Sprintf("%s.%s.%s", w.topic, e.Database, e.Table)
	key := strconv.FormatInt(e.RowID, 10)

	delay := defaultRetryInit
	for attempt := 1; ; attempt++ {
		err := w.sink.Publish(topic, key, value)
		if err == nil {
			return nil
		}
		if attempt >= defaultMaxRetries {
			return fmt.Errorf("exhausted %d retries publishing to %s: %w", defaultMaxRetries, topic, err)
		}
		log.Warn().Err(err).Str("sink", w.name).Str("topic", topic).Int("attempt", attempt).Dur("retry_delay", delay).Msg("publisher: publish failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-w.stopCh:
			timer.Stop()
			return fmt.Errorf("worker stopped mid-retry for topic %s", topic)
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * defaultRetryFactor)
		if delay > defaultRetryMax {
			delay = defaultRetryMax
		}
	}
}
