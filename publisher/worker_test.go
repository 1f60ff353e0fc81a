package publisher

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	failures int32
	calls    atomic.Int32
	last     struct {
		topic, key string
		value      []byte
	}
}

func (f *flakySink) Publish(topic, key string, value []byte) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return errors.New("temporary failure")
	}
	f.last.topic, f.last.key, f.last.value = topic, key, value
	return nil
}

func (f *flakySink) Close() error { return nil }

func TestWorkerRetriesUntilSuccess(t *testing.T) {
	sink := &flakySink{failures: 2}
	filter, err := NewGlobFilter(nil)
	require.NoError(t, err)

	w := newWorker("flaky", "cdc", sink, filter)
	err = w.publish(Event{Database: "app", Table: "t", RowID: 5})
	require.NoError(t, err)
	assert.Equal(t, int32(3), sink.calls.Load())
	assert.Equal(t, "cdc.app.t", sink.last.topic)
	assert.Equal(t, "5", sink.last.key)
}

func TestWorkerEnqueueDropsOnFullQueue(t *testing.T) {
	sink := &flakySink{}
	filter, err := NewGlobFilter(nil)
	require.NoError(t, err)

	w := newWorker("full", "cdc", sink, filter)
	for i := 0; i < defaultQueueDepth; i++ {
		w.enqueue(Event{Table: "t"})
	}
	w.enqueue(Event{Table: "t"})
	assert.Equal(t, uint64(1), w.dropped.Load())
}

func TestWorkerEnqueueSkipsFilteredTable(t *testing.T) {
	sink := &flakySink{}
	filter, err := NewGlobFilter([]string{"orders"})
	require.NoError(t, err)

	w := newWorker("filtered", "cdc", sink, filter)
	w.enqueue(Event{Table: "users"})
	assert.Len(t, w.queue, 0)
}

func TestWorkerStartStopDeliversQueuedEvent(t *testing.T) {
	sink := &flakySink{}
	filter, err := NewGlobFilter(nil)
	require.NoError(t, err)

	w := newWorker("live", "cdc", sink, filter)
	w.start()
	w.enqueue(Event{Database: "app", Table: "t", RowID: 1})

	require.Eventually(t, func() bool { return sink.calls.Load() == 1 }, time.Second, time.Millisecond)
	w.stop()
}
