package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/sessions"
)

// SessionsRepo guarda sesiones en memoria y ejecuta admisión/liberación
// contra los contadores del GrantsRepo compartido, bajo el lock de
// admisión de cada grant.
type SessionsRepo struct {
	mu      sync.RWMutex
	byToken map[string]sessions.Session

	grants *GrantsRepo
}

func NewSessionsRepo(g *GrantsRepo) *SessionsRepo {
	return &SessionsRepo{
		byToken: make(map[string]sessions.Session),
		grants:  g,
	}
}

// Admit corre leer-Admit-guardar bajo el mutex del grant. Dos admisiones
// concurrentes contra el mismo código se serializan acá; contra códigos
// distintos no.
func (r *SessionsRepo) Admit(ctx context.Context, code string, s sessions.Session, now time.Time) (sessions.Session, grants.Grant, error) {
	if strings.TrimSpace(s.Token) == "" {
		return sessions.Session{}, grants.Grant{}, errors.New("session token required")
	}

	g, err := r.grants.GetByCode(ctx, code)
	if err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}

	lock := r.grants.admitLock(g.ID)
	lock.Lock()
	defer lock.Unlock()

	// Releer bajo el lock: los contadores pudieron moverse.
	g, err = r.grants.GetByID(ctx, g.ID)
	if err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}
	if err := g.Admit(now); err != nil {
		return sessions.Session{}, grants.Grant{}, err
	}
	r.grants.putCounters(g)

	s.GrantID = g.ID
	s.CapToGrant(g)

	r.mu.Lock()
	r.byToken[s.Token] = s
	r.mu.Unlock()

	return s, g, nil
}

// Release devuelve el slot exactamente una vez: el flag Left se decide
// bajo el lock de sesiones, y solo el primer ganador decrementa.
func (r *SessionsRepo) Release(ctx context.Context, token string, now time.Time) (sessions.ReleaseStatus, error) {
	r.mu.Lock()
	s, ok := r.byToken[token]
	if !ok {
		r.mu.Unlock()
		return "", sessions.ErrNotFound
	}
	if s.Left {
		r.mu.Unlock()
		return sessions.AlreadyReleased, nil
	}
	s.Left = true
	s.LastActiveAt = now
	r.byToken[token] = s
	r.mu.Unlock()

	lock := r.grants.admitLock(s.GrantID)
	lock.Lock()
	defer lock.Unlock()

	g, err := r.grants.GetByID(ctx, s.GrantID)
	if err != nil {
		// grant desaparecido: la sesión igual quedó liberada
		return sessions.Released, nil
	}
	g.ReleaseSlot()
	r.grants.putCounters(g)

	return sessions.Released, nil
}

func (r *SessionsRepo) GetByToken(ctx context.Context, token string) (sessions.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byToken[token]
	if !ok {
		return sessions.Session{}, sessions.ErrNotFound
	}
	return s, nil
}

func (r *SessionsRepo) Touch(ctx context.Context, token string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return sessions.ErrNotFound
	}
	if s.Left {
		return sessions.ErrClosed
	}
	s.LastActiveAt = now
	r.byToken[token] = s
	return nil
}

func (r *SessionsRepo) ListIdle(ctx context.Context, cutoff, now time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0)
	for token, s := range r.byToken {
		if s.Left {
			continue
		}
		if s.LastActiveAt.Before(cutoff) || s.ExpiresAt.Before(now) {
			out = append(out, token)
		}
	}
	return out, nil
}
