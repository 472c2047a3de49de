package poorlock

import (
	"strconv"
	"time"
)

// Status is the ordinal written into the status field of a lock record.
type Status int64

const (
	StatusFirst  Status = 1
	StatusSecond Status = 2
)

func (s Status) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// Schema names the fields of the lock record. The names are part of the
// on-the-wire contract with the backing store and must not change between
// processes sharing a table.
type Schema struct {
	IDField       string
	StatusField   string
	LockedAtField string
}

func DefaultSchema() Schema {
	return Schema{
		IDField:       "id",
		StatusField:   "status",
		LockedAtField: "locked_at",
	}
}

// Record is the lock record as written by an acquisition.
type Record struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	LockedAt int64  `json:"locked_at,omitempty"`
}

func newRecord(key Key, status Status, now time.Time) Record {
	return Record{
		ID:       key.String(),
		Status:   status,
		LockedAt: now.Unix(),
	}
}
