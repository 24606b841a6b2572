package postgres

import (
	"context"
	"database/sql"
	"sort"

	"dataset-review/internal/domain/items"
	"dataset-review/internal/domain/selection"
)

type ItemsRepo struct {
	db *sql.DB
}

func NewItemsRepo(db *sql.DB) *ItemsRepo {
	return &ItemsRepo{db: db}
}

const itemColumns = `
	id, dataset_id, seq_num,
	original_content, current_content,
	status, is_marked,
	reviewed_by, reviewed_at,
	created_at, updated_at
`

func (r *ItemsRepo) Get(ctx context.Context, datasetID int, ref selection.ItemRef) (items.Item, error) {
	var row *sql.Row
	switch ref.Kind {
	case selection.KindIDSet:
		row = r.db.QueryRowContext(ctx, `
			SELECT `+itemColumns+`
			FROM dataset_items
			WHERE dataset_id = $1 AND id = $2
		`, datasetID, ref.ID)
	default:
		row = r.db.QueryRowContext(ctx, `
			SELECT `+itemColumns+`
			FROM dataset_items
			WHERE dataset_id = $1 AND seq_num = $2
		`, datasetID, ref.Seq)
	}
	return scanItem(row)
}

func (r *ItemsRepo) Update(ctx context.Context, it items.Item) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dataset_items
		SET
			current_content = $2,
			status = $3,
			is_marked = $4,
			reviewed_by = $5,
			reviewed_at = $6,
			updated_at = $7
		WHERE id = $1
	`,
		it.ID,
		it.CurrentContent,
		string(it.Status),
		it.IsMarked,
		it.ReviewedBy,
		toNullTime(it.ReviewedAt),
		it.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return items.ErrNotFound
	}
	return nil
}

func (r *ItemsRepo) ListBySelection(ctx context.Context, datasetID int, sel selection.Selection) ([]items.Item, error) {
	if start, end, ok := sel.Range(); ok {
		rows, err := r.db.QueryContext(ctx, `
			SELECT `+itemColumns+`
			FROM dataset_items
			WHERE dataset_id = $1 AND seq_num BETWEEN $2 AND $3
			ORDER BY seq_num ASC
		`, datasetID, start, end)
		if err != nil {
			return nil, err
		}
		return collectItems(rows)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM dataset_items
		WHERE dataset_id = $1 AND id = ANY($2)
	`, datasetID, toInt64s(sel.IDs()))
	if err != nil {
		return nil, err
	}
	out, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	// el orden de un id-set lo define la selección, no la tabla
	sort.Slice(out, func(i, j int) bool {
		pi, _ := sel.Locate(selection.ItemRef{Kind: selection.KindIDSet, ID: out[i].ID})
		pj, _ := sel.Locate(selection.ItemRef{Kind: selection.KindIDSet, ID: out[j].ID})
		return pi < pj
	})
	return out, nil
}

func (r *ItemsRepo) ListByDataset(ctx context.Context, datasetID int) ([]items.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM dataset_items
		WHERE dataset_id = $1
		ORDER BY seq_num ASC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func (r *ItemsRepo) MaxSeq(ctx context.Context, datasetID int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq_num), 0)
		FROM dataset_items
		WHERE dataset_id = $1
	`, datasetID).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *ItemsRepo) ExistAll(ctx context.Context, datasetID int, ids []int) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT id)
		FROM dataset_items
		WHERE dataset_id = $1 AND id = ANY($2)
	`, datasetID, toInt64s(ids)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == len(ids), nil
}

func scanItem(row *sql.Row) (items.Item, error) {
	var it items.Item
	var status string
	var reviewedBy sql.NullString
	var reviewedAt sql.NullTime

	if err := row.Scan(
		&it.ID,
		&it.DatasetID,
		&it.SeqNum,
		&it.OriginalContent,
		&it.CurrentContent,
		&status,
		&it.IsMarked,
		&reviewedBy,
		&reviewedAt,
		&it.CreatedAt,
		&it.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return items.Item{}, items.ErrNotFound
		}
		return items.Item{}, err
	}

	it.Status = items.Status(status)
	it.ReviewedBy = reviewedBy.String
	it.ReviewedAt = fromNullTime(reviewedAt)
	return it, nil
}

func collectItems(rows *sql.Rows) ([]items.Item, error) {
	defer rows.Close()

	out := make([]items.Item, 0)
	for rows.Next() {
		var it items.Item
		var status string
		var reviewedBy sql.NullString
		var reviewedAt sql.NullTime

		if err := rows.Scan(
			&it.ID,
			&it.DatasetID,
			&it.SeqNum,
			&it.OriginalContent,
			&it.CurrentContent,
			&status,
			&it.IsMarked,
			&reviewedBy,
			&reviewedAt,
			&it.CreatedAt,
			&it.UpdatedAt,
		); err != nil {
			return nil, err
		}

		it.Status = items.Status(status)
		it.ReviewedBy = reviewedBy.String
		it.ReviewedAt = fromNullTime(reviewedAt)
		out = append(out, it)
	}
	return out, rows.Err()
}

func toInt64s(in []int) []int64 {
	out := make([]int64, 0, len(in))
	for _, v := range in {
		out = append(out, int64(v))
	}
	return out
}
