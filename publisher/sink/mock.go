package sink

import "sync"

// Mock records every publish call in memory in place of a live NATS/Kafka
// broker. The publisher package's own tests define their own mock sink and
// do not use this one.
type Mock struct {
	mu     sync.Mutex
	Topics []string
	Keys   []string
	Values [][]byte
	closed bool
}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Topics = append(m.Topics, topic)
	m.Keys = append(m.Keys, key)
	m.Values = append(m.Values, value)
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Mock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Topics)
}

func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
