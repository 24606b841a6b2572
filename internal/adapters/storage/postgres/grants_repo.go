package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dataset-review/internal/domain/grants"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type GrantsRepo struct {
	db *sql.DB
}

func NewGrantsRepo(db *sql.DB) *GrantsRepo {
	return &GrantsRepo{db: db}
}

const grantColumns = `
	id, code, dataset_id,
	item_start, item_end, item_ids,
	permission, max_online, current_online,
	max_verify_count, verify_count,
	expires_at, is_active, creator_id, created_at
`

func (r *GrantsRepo) Create(ctx context.Context, g grants.Grant) error {
	start, end, idsJSON, err := selectionToColumns(g.Selection)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO auth_codes (`+grantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`,
		g.ID,
		g.Code,
		g.DatasetID,
		start,
		end,
		idsJSON,
		string(g.Permission),
		g.MaxOnline,
		g.CurrentOnline,
		g.MaxVerifyCount,
		g.VerifyCount,
		toNullTime(g.ExpiresAt),
		g.Active,
		g.CreatorID,
		g.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && strings.Contains(pgErr.ConstraintName, "code") {
			return grants.ErrCodeTaken
		}
		return err
	}
	return nil
}

func (r *GrantsRepo) GetByID(ctx context.Context, id string) (grants.Grant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return grants.Grant{}, grants.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM auth_codes
		WHERE id = $1
	`, id)
	return scanGrant(row)
}

func (r *GrantsRepo) GetByCode(ctx context.Context, code string) (grants.Grant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return grants.Grant{}, grants.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM auth_codes
		WHERE code = $1
	`, code)
	return scanGrant(row)
}

func (r *GrantsRepo) ListByDataset(ctx context.Context, datasetID int) ([]grants.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+grantColumns+`
		FROM auth_codes
		WHERE dataset_id = $1
		ORDER BY created_at ASC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]grants.Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *GrantsRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_codes
		SET is_active = $2
		WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return grants.ErrNotFound
	}
	return nil
}

func (r *GrantsRepo) CreateReview(ctx context.Context, rec grants.ReviewRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_code_reviews (id, grant_id, item_id, action, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`,
		rec.ID,
		rec.GrantID,
		rec.ItemID,
		rec.Action,
		rec.CreatedAt,
	)
	return err
}

func (r *GrantsRepo) GetReview(ctx context.Context, grantID string, itemID int) (grants.ReviewRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, grant_id, item_id, action, created_at
		FROM auth_code_reviews
		WHERE grant_id = $1 AND item_id = $2
		ORDER BY created_at ASC
		LIMIT 1
	`, grantID, itemID)

	var rec grants.ReviewRecord
	if err := row.Scan(&rec.ID, &rec.GrantID, &rec.ItemID, &rec.Action, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return grants.ReviewRecord{}, grants.ErrNotFound
		}
		return grants.ReviewRecord{}, err
	}
	return rec, nil
}

func (r *GrantsRepo) ListReviews(ctx context.Context, grantID string) ([]grants.ReviewRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, grant_id, item_id, action, created_at
		FROM auth_code_reviews
		WHERE grant_id = $1
		ORDER BY created_at ASC
	`, grantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]grants.ReviewRecord, 0)
	for rows.Next() {
		var rec grants.ReviewRecord
		if err := rows.Scan(&rec.ID, &rec.GrantID, &rec.ItemID, &rec.Action, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (grants.Grant, error) {
	var g grants.Grant
	var start, end sql.NullInt64
	var idsJSON sql.NullString
	var permission string
	var expiresAt sql.NullTime

	if err := row.Scan(
		&g.ID,
		&g.Code,
		&g.DatasetID,
		&start,
		&end,
		&idsJSON,
		&permission,
		&g.MaxOnline,
		&g.CurrentOnline,
		&g.MaxVerifyCount,
		&g.VerifyCount,
		&expiresAt,
		&g.Active,
		&g.CreatorID,
		&g.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return grants.Grant{}, grants.ErrNotFound
		}
		return grants.Grant{}, err
	}

	sel, err := selectionFromColumns(start, end, idsJSON)
	if err != nil {
		return grants.Grant{}, err
	}
	g.Selection = sel
	g.Permission = grants.Permission(permission)
	g.ExpiresAt = fromNullTime(expiresAt)
	return g, nil
}
