package poorlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrDupEntry = 1062

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLExecer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type SQLExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// MySQLStore keeps one row per lock. The primary key on the id column is
// what makes the INSERT a conditional write.
type MySQLStore struct {
	db   SQLExecer
	opts storeOptions

	createQuery string
	insertQuery string
	updateQuery string
	deleteQuery string
}

var (
	_ LockStore     = (*MySQLStore)(nil)
	_ SecondClaimer = (*MySQLStore)(nil)
)

func NewMySQLStore(db SQLExecer, table string, opts ...StoreOption) (*MySQLStore, error) {
	o := newStoreOptions(opts)
	for _, ident := range []string{table, o.schema.IDField, o.schema.StatusField, o.schema.LockedAtField} {
		if !identRe.MatchString(ident) {
			return nil, fmt.Errorf("poorlock: invalid mysql identifier %q", ident)
		}
	}
	id, status, lockedAt := o.schema.IDField, o.schema.StatusField, o.schema.LockedAtField

	return &MySQLStore{
		db:   db,
		opts: o,
		createQuery: fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (`%s` VARCHAR(255) NOT NULL PRIMARY KEY, `%s` TINYINT NOT NULL, `%s` BIGINT NULL)",
			table, id, status, lockedAt),
		insertQuery: fmt.Sprintf("INSERT INTO `%s` (`%s`, `%s`, `%s`) VALUES (?, ?, ?)",
			table, id, status, lockedAt),
		updateQuery: fmt.Sprintf("UPDATE `%s` SET `%s` = ?, `%s` = ? WHERE `%s` = ? AND `%s` = ?",
			table, status, lockedAt, id, status),
		deleteQuery: fmt.Sprintf("DELETE FROM `%s` WHERE `%s` = ?", table, id),
	}, nil
}

// CreateTable creates the lock table if it does not exist.
func (s *MySQLStore) CreateTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.createQuery)
	return err
}

func (s *MySQLStore) TryAcquire(ctx context.Context, key Key) error {
	r := newRecord(key, StatusFirst, s.opts.now())
	_, err := s.db.ExecContext(ctx, s.insertQuery, r.ID, int64(r.Status), r.LockedAt)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlErrDupEntry {
			return alreadyLocked(opAcquire, key)
		}
		s.opts.logger.Error("mysql insert failed", "key", key.String(), "err", err)
		return accessError(opAcquire, key, err)
	}
	return nil
}

func (s *MySQLStore) TryAcquireSecond(ctx context.Context, key Key) error {
	r := newRecord(key, StatusSecond, s.opts.now())
	res, err := s.db.ExecContext(ctx, s.updateQuery, int64(r.Status), r.LockedAt, r.ID, int64(StatusFirst))
	return s.affected(opAcquireSecond, key, res, err, alreadyLocked(opAcquireSecond, key))
}

func (s *MySQLStore) Release(ctx context.Context, key Key) error {
	res, err := s.db.ExecContext(ctx, s.deleteQuery, key.String())
	return s.affected(opRelease, key, res, err, alreadyUnlocked(key))
}

// affected maps a statement that touched no rows to none.
func (s *MySQLStore) affected(op string, key Key, res sql.Result, err error, none error) error {
	if err != nil {
		s.opts.logger.Error("mysql exec failed", "op", op, "key", key.String(), "err", err)
		return accessError(op, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return accessError(op, key, err)
	}
	if n == 0 {
		return none
	}
	return nil
}
