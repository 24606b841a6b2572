package delegation

import (
	"context"
	"time"

	"dataset-review/internal/domain/grants"
	"dataset-review/internal/domain/progress"
	"dataset-review/internal/domain/tasks"
	"dataset-review/internal/platform/logger"
	"dataset-review/internal/ports/notify"
)

const emitTimeout = 3 * time.Second

// Coordinator orquesta las dos formas de delegar un subconjunto: hacia un
// colaborador externo (código de acceso) o hacia un usuario interno
// (tarea). Además emite los eventos de delegación; las operaciones de
// dominio nunca dependen de que el sink esté vivo.
type Coordinator struct {
	grants   *grants.Service
	tasks    *tasks.Service
	progress *progress.Service
	sink     notify.Sink // puede ser nil
	log      logger.Logger
	now      func() time.Time
}

func NewCoordinator(g *grants.Service, t *tasks.Service, p *progress.Service, sink notify.Sink, log logger.Logger) *Coordinator {
	return &Coordinator{
		grants:   g,
		tasks:    t,
		progress: p,
		sink:     sink,
		log:      log,
		now:      time.Now,
	}
}

// DelegateToCode emite un código de acceso para un colaborador sin cuenta.
func (c *Coordinator) DelegateToCode(ctx context.Context, in grants.CreateInput) (grants.Grant, error) {
	g, err := c.grants.Create(ctx, in)
	if err != nil {
		return grants.Grant{}, err
	}
	c.emit(notify.Event{
		Type:      notify.EventCodeCreated,
		DatasetID: g.DatasetID,
		ActorID:   g.CreatorID,
		GrantID:   g.ID,
	})
	return g, nil
}

// RevokeCode desactiva un código y avisa a los interesados. Las sesiones
// ya emitidas siguen su curso hasta irse o vencer por inactividad.
func (c *Coordinator) RevokeCode(ctx context.Context, grantID, ownerID string) (grants.Grant, error) {
	g, err := c.grants.Revoke(ctx, grantID, ownerID)
	if err != nil {
		return grants.Grant{}, err
	}
	c.emit(notify.Event{
		Type:      notify.EventCodeRevoked,
		DatasetID: g.DatasetID,
		ActorID:   ownerID,
		GrantID:   g.ID,
	})
	return g, nil
}

// DelegateToUser asigna un subconjunto como tarea a un usuario interno.
func (c *Coordinator) DelegateToUser(ctx context.Context, in tasks.CreateInput) (tasks.Task, error) {
	t, err := c.tasks.Create(ctx, in)
	if err != nil {
		return tasks.Task{}, err
	}
	c.emit(notify.Event{
		Type:      notify.EventTaskDelegated,
		DatasetID: t.DatasetID,
		ActorID:   t.AssignerID,
		TargetID:  t.AssigneeID,
		TaskID:    t.ID,
	})
	return t, nil
}

// TaskStatus es una tarea emitida con su avance en vivo.
type TaskStatus struct {
	Task          tasks.Task
	ReviewedItems int
}

// Report es la vista del dueño sobre todo lo que delegó en un dataset.
type Report struct {
	DatasetID int
	Codes     []grants.Summary
	Tasks     []TaskStatus
}

// Report junta códigos emitidos y tareas asignadas por el dueño, cada uno
// con su avance. Los conteos se leen en vivo, no se cachean.
func (c *Coordinator) Report(ctx context.Context, datasetID int, ownerID string) (Report, error) {
	codes, err := c.grants.List(ctx, datasetID, ownerID)
	if err != nil {
		return Report{}, err
	}

	assigned, err := c.tasks.ListByAssigner(ctx, ownerID)
	if err != nil {
		return Report{}, err
	}

	rep := Report{DatasetID: datasetID, Codes: codes}
	for _, t := range assigned {
		if t.DatasetID != datasetID {
			continue
		}
		ts := TaskStatus{Task: t}
		if c.progress != nil {
			if n, err := c.progress.ReviewedCount(ctx, t.DatasetID, t.Selection); err == nil {
				ts.ReviewedItems = n
			}
		}
		rep.Tasks = append(rep.Tasks, ts)
	}
	return rep, nil
}

// emit publica el evento en background con su propio deadline: el request
// que lo originó no espera ni se entera de fallas del sink.
func (c *Coordinator) emit(ev notify.Event) {
	if c.sink == nil {
		return
	}
	ev.OccurredAt = c.now()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()

		if err := c.sink.Emit(ctx, ev); err != nil {
			c.log.Warn("delegation event emit failed", map[string]any{
				"type":  ev.Type,
				"error": err.Error(),
			})
		}
	}()
}
