package poorlock

import (
	"context"
	"errors"
	"fmt"
)

// ErrConditionFailed is returned by a Table when a precondition does not hold.
var ErrConditionFailed = errors.New("poorlock: conditional check failed")

// Fields is a record as a set of named attributes.
type Fields map[string]any

func (f Fields) clone() Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

type conditionKind int

const (
	condAlways conditionKind = iota
	condNotExists
	condEquals
)

// Condition is a precondition evaluated atomically with a write.
type Condition struct {
	kind  conditionKind
	field string
	value any
}

func Always() Condition {
	return Condition{kind: condAlways}
}

// AttributeNotExists holds when the record is absent or lacks field.
func AttributeNotExists(field string) Condition {
	return Condition{kind: condNotExists, field: field}
}

// AttributeEquals holds when the record exists and field == v.
func AttributeEquals(field string, v any) Condition {
	return Condition{kind: condEquals, field: field, value: v}
}

// Holds evaluates c against the current record. exists is false when there
// is no record.
func (c Condition) Holds(current Fields, exists bool) bool {
	switch c.kind {
	case condNotExists:
		if !exists {
			return true
		}
		_, ok := current[c.field]
		return !ok
	case condEquals:
		if !exists {
			return false
		}
		v, ok := current[c.field]
		return ok && v == c.value
	default:
		return true
	}
}

func (c Condition) String() string {
	switch c.kind {
	case condNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", c.field)
	case condEquals:
		return fmt.Sprintf("%s = %v", c.field, c.value)
	default:
		return "true"
	}
}

// Table is the conditional-write capability of a key-value store.
type Table interface {
	// ConditionalPut replaces the record id with fields if cond holds and
	// returns ErrConditionFailed otherwise.
	ConditionalPut(ctx context.Context, id string, fields Fields, cond Condition) error

	// ConditionalDelete removes the record id if cond holds and returns the
	// record as it was before the delete, or nil if there was none.
	ConditionalDelete(ctx context.Context, id string, cond Condition) (prior Fields, err error)
}

// TableStore implements LockStore and SecondClaimer on top of any Table.
type TableStore struct {
	table Table
	opts  storeOptions
}

var (
	_ LockStore     = (*TableStore)(nil)
	_ SecondClaimer = (*TableStore)(nil)
)

func NewTableStore(table Table, opts ...StoreOption) *TableStore {
	return &TableStore{
		table: table,
		opts:  newStoreOptions(opts),
	}
}

func (s *TableStore) TryAcquire(ctx context.Context, key Key) error {
	err := s.table.ConditionalPut(ctx, key.String(),
		s.fields(key, StatusFirst),
		AttributeNotExists(s.opts.schema.StatusField),
	)
	return s.translate(opAcquire, key, err)
}

func (s *TableStore) TryAcquireSecond(ctx context.Context, key Key) error {
	err := s.table.ConditionalPut(ctx, key.String(),
		s.fields(key, StatusSecond),
		AttributeEquals(s.opts.schema.StatusField, int64(StatusFirst)),
	)
	return s.translate(opAcquireSecond, key, err)
}

func (s *TableStore) Release(ctx context.Context, key Key) error {
	prior, err := s.table.ConditionalDelete(ctx, key.String(), Always())
	if err != nil {
		s.opts.logger.Error("release failed", "key", key.String(), "err", err)
		return accessError(opRelease, key, err)
	}
	if prior == nil {
		return alreadyUnlocked(key)
	}
	return nil
}

func (s *TableStore) fields(key Key, status Status) Fields {
	r := newRecord(key, status, s.opts.now())
	return Fields{
		s.opts.schema.IDField:       r.ID,
		s.opts.schema.StatusField:   int64(r.Status),
		s.opts.schema.LockedAtField: r.LockedAt,
	}
}

func (s *TableStore) translate(op string, key Key, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConditionFailed):
		return alreadyLocked(op, key)
	default:
		s.opts.logger.Error("conditional put failed", "op", op, "key", key.String(), "err", err)
		return accessError(op, key, err)
	}
}
