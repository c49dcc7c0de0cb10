package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Queryable is the union of the sqlx methods the stores need; both
// *sqlx.DB and *sqlx.Tx satisfy it, allowing store methods to run
// inside or outside of a transaction.
type Queryable interface {
	Exec(query string, args ...any) (sql.Result, error)
	Select(dest any, query string, args ...any) error
	Get(dest any, query string, args ...any) error
}

// WrapTx begins a transaction on the provided database, executes the
// provided function, and commits. If the function returns an error
// the transaction is rolled back and the error returned as-is.
func WrapTx(db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := f(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("rollback failed (%s) following error: %w", rollbackErr, err)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// JsonColumn wraps any JSON-serializable type such that it can be
// scanned from (and stored to) a jsonb database column. A SQL NULL
// scans to a nil inner value.
type JsonColumn[T any] struct {
	val *T
}

func NewJsonColumn[T any](val *T) JsonColumn[T] { return JsonColumn[T]{val: val} }

func (col *JsonColumn[T]) Get() *T { return col.val }

func (col *JsonColumn[T]) Scan(src any) error {
	if src == nil {
		col.val = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T in to JsonColumn", src)
	}

	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal jsonb column: %w", err)
	}

	col.val = out
	return nil
}

func (col JsonColumn[T]) Value() (driver.Value, error) {
	if col.val == nil {
		return nil, nil
	}

	return json.Marshal(col.val)
}
