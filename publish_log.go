package match

import "sync"

// PublishLog is an interface for publishing order book logs (opens, matches, rejects).
//
// IMPORTANT: Implementations must either:
//  1. Process logs synchronously before returning, OR
//  2. Clone the BookLog data before returning
//
// The caller recycles BookLog objects to a sync.Pool after Publish returns,
// so any asynchronous processing must work with cloned data.
type PublishLog interface {
	Publish(...*BookLog)
}

// MemoryPublishLog stores logs in memory, useful for testing.
type MemoryPublishLog struct {
	mu   sync.RWMutex
	Logs []*BookLog
}

// NewMemoryPublishLog creates a new MemoryPublishLog.
func NewMemoryPublishLog() *MemoryPublishLog {
	return &MemoryPublishLog{
		Logs: make([]*BookLog, 0),
	}
}

// Publish appends copies of logs to the in-memory slice.
func (m *MemoryPublishLog) Publish(logs ...*BookLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range logs {
		cpy := new(BookLog)
		*cpy = *log
		m.Logs = append(m.Logs, cpy)
	}
}

// Count returns the number of logs stored.
func (m *MemoryPublishLog) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Logs)
}

// Get returns the log at the specified index.
func (m *MemoryPublishLog) Get(index int) *BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Logs[index]
}

// Filter returns the stored logs of the given type.
func (m *MemoryPublishLog) Filter(logType LogType) []*BookLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*BookLog, 0)
	for _, log := range m.Logs {
		if log.Type == logType {
			result = append(result, log)
		}
	}
	return result
}

// DiscardPublishLog discards all logs, useful for benchmarking.
type DiscardPublishLog struct {
}

// NewDiscardPublishLog creates a new DiscardPublishLog.
func NewDiscardPublishLog() *DiscardPublishLog {
	return &DiscardPublishLog{}
}

// Publish does nothing.
func (p *DiscardPublishLog) Publish(logs ...*BookLog) {

}
