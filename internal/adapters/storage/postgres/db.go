package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"dataset-review/internal/domain/selection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open abre una conexión pool a Postgres usando pgx (database/sql).
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	// defaults razonables para MVP (ajustable luego)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// helpers compartidos por los repos

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// selectionToColumns aplana una Selection a sus tres columnas:
// item_start/item_end para rangos, item_ids (JSON) para id-sets.
func selectionToColumns(sel selection.Selection) (start, end sql.NullInt64, idsJSON sql.NullString, err error) {
	if s, e, ok := sel.Range(); ok {
		start = sql.NullInt64{Int64: int64(s), Valid: true}
		end = sql.NullInt64{Int64: int64(e), Valid: true}
		return start, end, sql.NullString{}, nil
	}

	b, err := json.Marshal(sel.IDs())
	if err != nil {
		return sql.NullInt64{}, sql.NullInt64{}, sql.NullString{}, err
	}
	return sql.NullInt64{}, sql.NullInt64{}, sql.NullString{String: string(b), Valid: true}, nil
}

// selectionFromColumns rearma la Selection persistida; ids priman sobre rango.
func selectionFromColumns(start, end sql.NullInt64, idsJSON sql.NullString) (selection.Selection, error) {
	var ids []int
	if idsJSON.Valid && idsJSON.String != "" {
		if err := json.Unmarshal([]byte(idsJSON.String), &ids); err != nil {
			return selection.Selection{}, err
		}
	}
	return selection.FromStored(int(start.Int64), int(end.Int64), ids)
}
