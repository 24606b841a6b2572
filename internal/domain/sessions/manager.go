package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/platform/logger"

	"github.com/google/uuid"
)

const (
	DefaultMaxAge        = 24 * time.Hour
	DefaultIdleTimeout   = 15 * time.Minute
	DefaultSweepInterval = time.Minute
)

// GrantLookup evita importar repos de grants directamente (rompe ciclos).
type GrantLookup interface {
	GetByID(ctx context.Context, id string) (grants.Grant, error)
}

// Config del manager. El umbral de inactividad es una decisión de
// producto, no de correctitud; el barrido en sí NO es opcional: sin él la
// capacidad se fuga cuando el unload del navegador no llega.
type Config struct {
	MaxAge        time.Duration // vencimiento absoluto por defecto de cada sesión
	IdleTimeout   time.Duration // inactividad máxima antes del barrido
	SweepInterval time.Duration

	// Now permite inyectar el reloj (tests). Default: time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Manager admite y libera sesiones contra los límites de un grant.
type Manager struct {
	repo       Repository
	grantsRepo GrantLookup
	log        logger.Logger
	cfg        Config
	genToken   func() string
}

func NewManager(repo Repository, grantsRepo GrantLookup, log logger.Logger, cfg Config) *Manager {
	return &Manager{
		repo:       repo,
		grantsRepo: grantsRepo,
		log:        log,
		cfg:        cfg.withDefaults(),
		genToken:   GenerateToken,
	}
}

// GenerateToken genera un token de sesión opaco de 64 hex chars.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand no debería fallar; un uuid sigue siendo opaco
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}

// ClientInfo es lo que sabemos del cliente que verifica (auditoría).
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Verify valida el código y, si pasa, emite una sesión. Las cinco
// precondiciones (existe, activo, no vencido, verificaciones disponibles,
// capacidad disponible), los dos incrementos y la creación de la sesión
// ocurren como unidad atómica por grant dentro de repo.Admit.
func (m *Manager) Verify(ctx context.Context, code string, client ClientInfo) (Session, grants.Grant, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Session{}, grants.Grant{}, grants.ErrNotFound
	}

	now := m.cfg.Now()
	s := Session{
		ID:           uuid.NewString(),
		Token:        m.genToken(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.cfg.MaxAge),
	}

	s, g, err := m.repo.Admit(ctx, code, s, now)
	if err != nil {
		return Session{}, grants.Grant{}, err
	}

	m.log.Info("session admitted", map[string]any{
		"grant_id":     g.ID,
		"online":       g.CurrentOnline,
		"verify_count": g.VerifyCount,
	})
	return s, g, nil
}

// Leave libera la sesión. Liberar dos veces es un no-op inofensivo
// (AlreadyReleased): el cliente puede competir con el barrido, o el
// beacon de unload puede dispararse dos veces.
func (m *Manager) Leave(ctx context.Context, token string) (ReleaseStatus, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNotFound
	}

	st, err := m.repo.Release(ctx, token, m.cfg.Now())
	if err != nil {
		return "", err
	}
	if st == Released {
		m.log.Info("session released", map[string]any{"token_prefix": tokenPrefix(token)})
	}
	return st, nil
}

// Authorize resuelve una sesión viva para fetch/update de ítems y renueva
// su actividad. La revocación o expiración del grant NO invalida sesiones
// ya emitidas: siguen sirviendo hasta Leave o hasta que las recoja el
// barrido (decisión heredada: no interrumpir una revisión en curso).
func (m *Manager) Authorize(ctx context.Context, token string) (Session, grants.Grant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, grants.Grant{}, ErrNotFound
	}

	s, err := m.repo.GetByToken(ctx, token)
	if err != nil {
		return Session{}, grants.Grant{}, err
	}

	now := m.cfg.Now()
	if s.Left || now.After(s.ExpiresAt) {
		return Session{}, grants.Grant{}, ErrClosed
	}

	// best-effort: perder un touch no corta el request
	if err := m.repo.Touch(ctx, token, now); err != nil {
		m.log.Warn("session touch failed", map[string]any{"error": err.Error()})
	}

	g, err := m.grantsRepo.GetByID(ctx, s.GrantID)
	if err != nil {
		return Session{}, grants.Grant{}, err
	}
	return s, g, nil
}

// Sweep libera las sesiones abandonadas: inactivas más allá del umbral o
// pasadas de su vencimiento absoluto. Cada liberación pasa por el mismo
// Release idempotente que usa Leave, así una carrera barrido-vs-cliente
// nunca descuenta dos veces.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.cfg.Now()
	tokens, err := m.repo.ListIdle(ctx, now.Add(-m.cfg.IdleTimeout), now)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, token := range tokens {
		st, err := m.repo.Release(ctx, token, now)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				m.log.Warn("sweep release failed", map[string]any{"error": err.Error()})
			}
			continue
		}
		if st == Released {
			released++
		}
	}

	if released > 0 {
		m.log.Info("idle sessions swept", map[string]any{"released": released})
	}
	return released, nil
}

// Run ejecuta el barrido periódico hasta que el contexto se cancele.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error("session sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
