package postgres

import (
	"context"
	"database/sql"

	"dataset-review/internal/domain/tasks"
)

type TasksRepo struct {
	db *sql.DB
}

func NewTasksRepo(db *sql.DB) *TasksRepo {
	return &TasksRepo{db: db}
}

const taskColumns = `
	id, dataset_id, assigner_id, assignee_id,
	item_start, item_end, item_ids,
	priority, note, due_date,
	status, reviewed_by_assigner, delegated_from_id,
	created_at, updated_at, completed_at
`

func (r *TasksRepo) Create(ctx context.Context, t tasks.Task) error {
	start, end, idsJSON, err := selectionToColumns(t.Selection)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO review_tasks (`+taskColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		t.ID,
		t.DatasetID,
		t.AssignerID,
		t.AssigneeID,
		start,
		end,
		idsJSON,
		t.Priority,
		t.Note,
		toNullTime(t.DueDate),
		string(t.Status),
		t.ReviewedByAssigner,
		nullString(t.DelegatedFromID),
		t.CreatedAt,
		t.UpdatedAt,
		toNullTime(t.CompletedAt),
	)
	return err
}

func (r *TasksRepo) Update(ctx context.Context, t tasks.Task) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE review_tasks
		SET
			status = $2,
			reviewed_by_assigner = $3,
			note = $4,
			updated_at = $5,
			completed_at = $6
		WHERE id = $1
	`,
		t.ID,
		string(t.Status),
		t.ReviewedByAssigner,
		t.Note,
		t.UpdatedAt,
		toNullTime(t.CompletedAt),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return tasks.ErrNotFound
	}
	return nil
}

func (r *TasksRepo) GetByID(ctx context.Context, id string) (tasks.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM review_tasks
		WHERE id = $1
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return tasks.Task{}, tasks.ErrNotFound
		}
		return tasks.Task{}, err
	}
	return t, nil
}

func (r *TasksRepo) ListByAssignee(ctx context.Context, assigneeID string) ([]tasks.Task, error) {
	return r.list(ctx, `assignee_id = $1`, assigneeID)
}

func (r *TasksRepo) ListByAssigner(ctx context.Context, assignerID string) ([]tasks.Task, error) {
	return r.list(ctx, `assigner_id = $1`, assignerID)
}

func (r *TasksRepo) list(ctx context.Context, where string, arg any) ([]tasks.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM review_tasks
		WHERE `+where+`
		ORDER BY created_at ASC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]tasks.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (tasks.Task, error) {
	var t tasks.Task
	var start, end sql.NullInt64
	var idsJSON sql.NullString
	var status string
	var dueDate, completedAt sql.NullTime
	var delegatedFrom sql.NullString

	if err := row.Scan(
		&t.ID,
		&t.DatasetID,
		&t.AssignerID,
		&t.AssigneeID,
		&start,
		&end,
		&idsJSON,
		&t.Priority,
		&t.Note,
		&dueDate,
		&status,
		&t.ReviewedByAssigner,
		&delegatedFrom,
		&t.CreatedAt,
		&t.UpdatedAt,
		&completedAt,
	); err != nil {
		return tasks.Task{}, err
	}

	sel, err := selectionFromColumns(start, end, idsJSON)
	if err != nil {
		return tasks.Task{}, err
	}
	t.Selection = sel
	t.Status = tasks.Status(status)
	t.DueDate = fromNullTime(dueDate)
	t.CompletedAt = fromNullTime(completedAt)
	t.DelegatedFromID = delegatedFrom.String
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
