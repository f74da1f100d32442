package persistence

import (
	"context"
	"sync"

	"robo-ingest/internal/model"
)

// Memory keeps everything in process. Default backend and test double.
// FailWith, when set, makes RecordEvent / RecordFinancial fail.
type Memory struct {
	mu        sync.Mutex
	logs      []model.LogRecord
	events    map[model.DedupKey]model.NeutralEvent
	financial []model.FinancialRecord

	failWith error
}

func NewMemory() *Memory {
	return &Memory{events: make(map[model.DedupKey]model.NeutralEvent)}
}

// FailWith makes every subsequent write return err (nil clears it).
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *Memory) Log(ctx context.Context, rec model.LogRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, rec)
	return nil
}

func (m *Memory) RecordEvent(ctx context.Context, ev *model.NeutralEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.events[ev.Key()] = *ev
	return nil
}

func (m *Memory) RecordFinancial(ctx context.Context, rec model.FinancialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.financial = append(m.financial, rec)
	return nil
}

// Logs returns a copy of every record seen by Log.
func (m *Memory) Logs() []model.LogRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.LogRecord(nil), m.logs...)
}

// Event looks up the stored event for key.
func (m *Memory) Event(key model.DedupKey) (model.NeutralEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[key]
	return ev, ok
}

// EventCount returns the number of distinct keys stored.
func (m *Memory) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Financial returns a copy of every inserted financial record.
func (m *Memory) Financial() []model.FinancialRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.FinancialRecord(nil), m.financial...)
}
