package correlation

import "sync"

// Table maps a conversation to its most recently registered task.
type Table interface {
	// Register makes t the live entry for its conversation and returns the
	// entry it replaced, if any.
	Register(t *Task) (replaced *Task)
	// Lookup returns the live entry without removing it.
	Lookup(conversationID string) (*Task, bool)
	// Pending counts entries that have not settled.
	Pending() int
	Len() int
}

// MemoryTable is a process-local Table. Each operation touches a single key.
type MemoryTable struct {
	entries sync.Map // conversation id -> *Task
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

func (m *MemoryTable) Register(t *Task) *Task {
	prev, loaded := m.entries.Swap(t.ConversationID, t)
	if !loaded {
		return nil
	}
	return prev.(*Task)
}

func (m *MemoryTable) Lookup(conversationID string) (*Task, bool) {
	v, ok := m.entries.Load(conversationID)
	if !ok {
		return nil, false
	}
	return v.(*Task), true
}

func (m *MemoryTable) Pending() int {
	n := 0
	m.entries.Range(func(_, v any) bool {
		if v.(*Task).State() == Pending {
			n++
		}
		return true
	})
	return n
}

func (m *MemoryTable) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

var _ Table = (*MemoryTable)(nil)
