package poorlock

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryTable is an in-process Table. Conditions are evaluated inside
// xsync's per-key Compute, so every operation is atomic for its key.
type MemoryTable struct {
	records *xsync.MapOf[string, Fields]
}

var _ Table = (*MemoryTable)(nil)

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		records: xsync.NewMapOf[string, Fields](),
	}
}

// NewMemoryStore returns a LockStore backed by a fresh MemoryTable. Locks
// only coordinate callers sharing the returned value.
func NewMemoryStore(opts ...StoreOption) *TableStore {
	return NewTableStore(NewMemoryTable(), opts...)
}

func (t *MemoryTable) ConditionalPut(ctx context.Context, id string, fields Fields, cond Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	failed := false
	t.records.Compute(id, func(old Fields, loaded bool) (Fields, bool) {
		if !cond.Holds(old, loaded) {
			failed = true
			return old, !loaded
		}
		return fields.clone(), false
	})
	if failed {
		return ErrConditionFailed
	}
	return nil
}

func (t *MemoryTable) ConditionalDelete(ctx context.Context, id string, cond Condition) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var prior Fields
	failed := false
	t.records.Compute(id, func(old Fields, loaded bool) (Fields, bool) {
		if !cond.Holds(old, loaded) {
			failed = true
			return old, !loaded
		}
		if loaded {
			prior = old.clone()
		}
		return old, true
	})
	if failed {
		return nil, ErrConditionFailed
	}
	return prior, nil
}

// Get returns a copy of the record id.
func (t *MemoryTable) Get(id string) (Fields, bool) {
	f, ok := t.records.Load(id)
	return f.clone(), ok
}

func (t *MemoryTable) Len() int {
	return t.records.Size()
}
