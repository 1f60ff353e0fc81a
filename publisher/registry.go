package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/cfg"
	"github.com/dqlited/dqlited/internal/vfs"
)

// SinkFactory builds a Sink from one publisher sink's configuration.
// sink/nats.go and sink/kafka.go each register one at init().
type SinkFactory func(cfg.PublisherSinkConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink installs a sink factory under kind, matching cfg's
// PublisherSinkConfiguration.Kind values ("nats", "kafka").
func RegisterSink(kind string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[kind] = factory
}

func createSink(config cfg.PublisherSinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, ok := sinkFactories[config.Kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("publisher: unknown sink kind %q", config.Kind)
	}
	return factory(config)
}

// Registry owns every configured sink's worker and is the single entry
// point the replication apply path calls into, grounded on the teacher's
// CDC publisher Registry (publisher/registry.go).
type Registry struct {
	mu      sync.Mutex
	workers []*worker
	running atomic.Bool
}

// NewRegistry builds one worker per enabled sink configuration. A
// configuration error in one sink tears down every sink already built, so a
// misconfigured node fails to start rather than silently running with a
// partial fan-out set.
func NewRegistry(configs []cfg.PublisherSinkConfiguration) (*Registry, error) {
	r := &Registry{}
	for _, c := range configs {
		if !c.Enabled {
			continue
		}
		if err := r.addSink(c); err != nil {
			for _, w := range r.workers {
				w.sink.Close()
			}
			return nil, fmt.Errorf("publisher: add sink %q: %w", c.Kind, err)
		}
	}
	return r, nil
}

func (r *Registry) addSink(c cfg.PublisherSinkConfiguration) error {
	snk, err := createSink(c)
	if err != nil {
		return err
	}
	filter, err := NewGlobFilter(c.Tables)
	if err != nil {
		snk.Close()
		return err
	}
	topic := c.Subject
	if topic == "" {
		topic = "dqlited.cdc"
	}
	r.workers = append(r.workers, newWorker(c.Kind, topic, snk, filter))
	return nil
}

// Start launches every worker's publish loop.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running.CompareAndSwap(false, true) {
		return
	}
	for _, w := range r.workers {
		w.start()
	}
	log.Info().Int("sinks", len(r.workers)).Msg("publisher: registry started")
}

// Stop stops every worker and closes its sink. Events still queued when Stop
// runs are not published.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	for _, w := range r.workers {
		w.stop()
	}
	log.Info().Msg("publisher: registry stopped")
}

// PublishApplied fans a committed entry's frames out to every configured
// sink, called from internal/replication's apply path once an entry has
// landed locally — spec §4.5's apply() step, extended for this node's
// optional CDC consumers.
func (r *Registry) PublishApplied(dbID uint64, database string, index uint64, frames []vfs.Frame) {
	if !r.running.Load() {
		return
	}
	events := EventsFromFrames(dbID, database, index, frames)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.workers {
		for _, e := range events {
			w.enqueue(e)
		}
	}
}
