package common

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// GetByID достаёт сущность по первичному ключу.
func GetByID[T any](ctx context.Context, db *sqlx.DB, table string, id interface{}, notFoundErr error) (*T, error) {
	return GetByField[T](ctx, db, table, "id", id, notFoundErr)
}

// GetByField достаёт сущность по равенству одного поля.
func GetByField[T any](ctx context.Context, db *sqlx.DB, table, field string, value interface{}, notFoundErr error) (*T, error) {
	var entity T
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, field)

	err := db.GetContext(ctx, &entity, query, value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, notFoundErr
	case err != nil:
		return nil, fmt.Errorf("get by %s from %s: %w", field, table, err)
	}
	return &entity, nil
}

// UpdateStatusCAS выполняет условное обновление статуса (compare-and-set).
// Это единственный механизм конкурентного контроля: из двух гонящихся
// вызовов ровно один обновит строку, второй получит ErrStatusConflict.
func UpdateStatusCAS(ctx context.Context, db *sqlx.DB, table string, id interface{}, from, to string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, table)

	res, err := db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return fmt.Errorf("cas update %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cas update %s: rows affected: %w", table, err)
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// BatchInserter накапливает строки и вставляет их одним запросом.
type BatchInserter struct {
	tx        *sqlx.Tx
	base      string
	fields    int
	batchSize int
	values    []interface{}
	rows      int
}

// NewBatchInserter готовит вставку вида "INSERT INTO ... (f1, ..., fN)".
func NewBatchInserter(tx *sqlx.Tx, baseQuery string, fields, batchSize int) *BatchInserter {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BatchInserter{
		tx:        tx,
		base:      baseQuery,
		fields:    fields,
		batchSize: batchSize,
		values:    make([]interface{}, 0, batchSize*fields),
	}
}

// Add ставит строку в очередь, при заполнении пачки выполняет вставку.
func (bi *BatchInserter) Add(ctx context.Context, rowValues ...interface{}) error {
	if len(rowValues) != bi.fields {
		return fmt.Errorf("expected %d fields, got %d", bi.fields, len(rowValues))
	}

	bi.values = append(bi.values, rowValues...)
	bi.rows++

	if bi.rows >= bi.batchSize {
		return bi.Flush(ctx)
	}
	return nil
}

// Flush вставляет накопленные строки.
func (bi *BatchInserter) Flush(ctx context.Context) error {
	if bi.rows == 0 {
		return nil
	}

	var sb strings.Builder
	arg := 1
	for row := 0; row < bi.rows; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for f := 0; f < bi.fields; f++ {
			if f > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", arg)
			arg++
		}
		sb.WriteByte(')')
	}

	query := bi.base + " VALUES " + sb.String()
	if _, err := bi.tx.ExecContext(ctx, query, bi.values...); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}

	bi.values = bi.values[:0]
	bi.rows = 0
	return nil
}

// WithTransaction выполняет fn внутри транзакции с откатом при ошибке
// или панике.
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
