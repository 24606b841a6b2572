package router

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	mem "dataset-review/internal/adapters/storage/memory"
	pg "dataset-review/internal/adapters/storage/postgres"
	"dataset-review/internal/domain/delegation"
	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/items"
	"dataset-review/internal/domain/progress"
	"dataset-review/internal/domain/sessions"
	"dataset-review/internal/domain/tasks"
	"dataset-review/internal/middleware"
	"dataset-review/internal/platform/logger"
	"dataset-review/internal/ports/auth"
	"dataset-review/internal/ports/notify"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	Log      logger.Logger
	Sessions sessions.Config

	// Sink de eventos de delegación; nil desactiva la emisión.
	Notify notify.Sink

	// Opcional: repo de ítems ya armado (tests siembran acá). Solo aplica
	// en modo in-memory.
	ItemsRepo items.Repository
}

// NewRouter arma el grafo completo de repos, services y rutas, y devuelve
// además el manager de sesiones para que main corra su barrido.
func NewRouter(opts Options) (http.Handler, *sessions.Manager) {
	log := opts.Log
	if log == nil {
		log = logger.NewFromEnv()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var (
		itemsRepo    items.Repository
		grantsRepo   grants.Repository
		sessionsRepo sessions.Repository
		tasksRepo    tasks.Repository
	)

	// Si no te pasan DB explícita, intenta por env (para dev/handoff)
	db := opts.DB
	if db == nil {
		if dsn := os.Getenv("DB_DSN"); dsn != "" {
			opened, err := pg.Open(dsn)
			if err == nil {
				db = opened
			} else {
				log.Warn("postgres open failed, falling back to memory", map[string]any{"error": err.Error()})
			}
		}
	}

	if db != nil {
		itemsRepo = pg.NewItemsRepo(db)
		grantsRepo = pg.NewGrantsRepo(db)
		pgSessions := pg.NewSessionsRepo(db)
		sessionsRepo = pgSessions
		tasksRepo = pg.NewTasksRepo(db)

		// Contadores en línea pueden haber quedado inflados si el proceso
		// anterior murió con sesiones abiertas.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pgSessions.ReconcileOnline(ctx, time.Now()); err != nil {
			log.Warn("online counter reconcile failed", map[string]any{"error": err.Error()})
		}
	} else {
		memGrants := mem.NewGrantsRepo()
		grantsRepo = memGrants
		sessionsRepo = mem.NewSessionsRepo(memGrants)
		tasksRepo = mem.NewTasksRepo()

		itemsRepo = opts.ItemsRepo
		if itemsRepo == nil {
			itemsRepo = mem.NewItemsRepo()
		}
	}

	// Services por módulo
	tasksSvc := tasks.NewService(tasksRepo)
	itemsSvc := items.NewService(itemsRepo, tasksSvc)
	progressSvc := progress.NewService(itemsRepo)
	grantsSvc := grants.NewService(grantsRepo, itemsRepo, progressSvc)
	mgr := sessions.NewManager(sessionsRepo, grantsRepo, log, opts.Sessions)
	coord := delegation.NewCoordinator(grantsSvc, tasksSvc, progressSvc, opts.Notify, log)

	// Rutas por módulo
	items.RegisterRoutes(r, itemsSvc)
	progress.RegisterRoutes(r, progressSvc)
	grants.RegisterRoutes(r, grantsSvc)
	sessions.RegisterRoutes(r, mgr, itemsSvc)
	tasks.RegisterRoutes(r, tasksSvc, progressSvc)
	delegation.RegisterRoutes(r, coord)

	return r, mgr
}
