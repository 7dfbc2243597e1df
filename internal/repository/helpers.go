package repository

import (
	"database/sql"

	"github.com/ignatzorin/escrow-backend/internal/repository/common"
)

// requireAffected превращает условное обновление без затронутых строк
// в ErrStatusConflict.
func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrStatusConflict
	}
	return nil
}
