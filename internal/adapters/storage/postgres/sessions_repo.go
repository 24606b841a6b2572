package postgres

import (
	"context"
	"database/sql"
	"time"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/sessions"
)

// SessionsRepo persiste sesiones y ejecuta admisión/liberación en
// transacciones con row lock sobre el grant (SELECT ... FOR UPDATE): la
// exclusión es por fila, grants distintos no se serializan entre sí.
type SessionsRepo struct {
	db *sql.DB
}

func NewSessionsRepo(db *sql.DB) *SessionsRepo {
	return &SessionsRepo{db: db}
}

func (r *SessionsRepo) Admit(ctx context.Context, code string, s sessions.Session, now time.Time) (sessions.Session, grants.Grant, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+grantColumns+`
		FROM auth_codes
		WHERE code = $1
		FOR UPDATE
	`, code)

	g, err := scanGrant(row)
	if err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}

	if err := g.Admit(now); err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_codes
		SET current_online = $2, verify_count = $3
		WHERE id = $1
	`, g.ID, g.CurrentOnline, g.VerifyCount); err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}

	s.GrantID = g.ID
	s.CapToGrant(g)

	// "left" es palabra reservada en SQL; la columna se llama is_left
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auth_code_sessions (
			id, token, grant_id, ip_address, user_agent,
			is_left, created_at, last_active_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		s.ID,
		s.Token,
		s.GrantID,
		s.IPAddress,
		s.UserAgent,
		s.Left,
		s.CreatedAt,
		s.LastActiveAt,
		s.ExpiresAt,
	); err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}

	if err := tx.Commit(); err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}
	return s, g, nil
}

func (r *SessionsRepo) Release(ctx context.Context, token string, now time.Time) (sessions.ReleaseStatus, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var grantID string
	var left bool
	err = tx.QueryRowContext(ctx, `
		SELECT grant_id, is_left
		FROM auth_code_sessions
		WHERE token = $1
		FOR UPDATE
	`, token).Scan(&grantID, &left)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", sessions.ErrNotFound
		}
		return "", err
	}
	if left {
		return sessions.AlreadyReleased, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_code_sessions
		SET is_left = TRUE, last_active_at = $2
		WHERE token = $1
	`, token, now); err != nil {
		return "", err
	}

	// GREATEST defiende contra contadores ya pisados por reconciliación
	if _, err := tx.ExecContext(ctx, `
		UPDATE auth_codes
		SET current_online = GREATEST(current_online - 1, 0)
		WHERE id = $1
	`, grantID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return sessions.Released, nil
}

func (r *SessionsRepo) GetByToken(ctx context.Context, token string) (sessions.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token, grant_id, ip_address, user_agent,
		       is_left, created_at, last_active_at, expires_at
		FROM auth_code_sessions
		WHERE token = $1
	`, token)

	var s sessions.Session
	if err := row.Scan(
		&s.ID,
		&s.Token,
		&s.GrantID,
		&s.IPAddress,
		&s.UserAgent,
		&s.Left,
		&s.CreatedAt,
		&s.LastActiveAt,
		&s.ExpiresAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return sessions.Session{}, sessions.ErrNotFound
		}
		return sessions.Session{}, err
	}
	return s, nil
}

func (r *SessionsRepo) Touch(ctx context.Context, token string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_code_sessions
		SET last_active_at = $2
		WHERE token = $1 AND is_left = FALSE
	`, token, now)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM auth_code_sessions WHERE token = $1)
	`, token).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return sessions.ErrClosed
	}
	return sessions.ErrNotFound
}

func (r *SessionsRepo) ListIdle(ctx context.Context, cutoff, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token
		FROM auth_code_sessions
		WHERE is_left = FALSE
		  AND (last_active_at < $1 OR expires_at < $2)
	`, cutoff, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		out = append(out, token)
	}
	return out, rows.Err()
}

// ReconcileOnline recalcula current_online desde las sesiones vivas. Se
// corre al arrancar: si el proceso murió con sesiones abiertas, los
// contadores persistidos pueden haber quedado por encima de la realidad.
func (r *SessionsRepo) ReconcileOnline(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE auth_codes g
		SET current_online = (
			SELECT COUNT(*)
			FROM auth_code_sessions s
			WHERE s.grant_id = g.id
			  AND s.is_left = FALSE
			  AND s.expires_at > $1
		)
	`, now)
	return err
}
