package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dropDatabas3/camguard/internal/domain/repository"
	"github.com/dropDatabas3/camguard/internal/observability/logger"
)

// DefaultPurgeSchedule corre la limpieza cada hora.
const DefaultPurgeSchedule = "@hourly"

// Janitor borra periódicamente sesiones expiradas o revocadas hace más de
// retention. Mientras dura la retención, los tokens rotados de una sesión
// revocada siguen contando como reuso.
type Janitor struct {
	repo      repository.SessionRepository
	retention time.Duration
	now       func() time.Time
	cron      *cron.Cron

	// OnPurge, si no es nil, recibe la cantidad borrada en cada pasada.
	OnPurge func(n int)
}

func NewJanitor(repo repository.SessionRepository, schedule string, retention time.Duration, now func() time.Time) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if now == nil {
		now = time.Now
	}
	j := &Janitor{
		repo:      repo,
		retention: retention,
		now:       now,
		cron:      cron.New(),
	}
	if _, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			logger.Named("session.janitor").Warn("session purge failed", logger.Err(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce ejecuta una pasada de limpieza y devuelve cuántas sesiones borró.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	before := j.now().UTC().Add(-j.retention)
	n, err := j.repo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if j.OnPurge != nil {
		j.OnPurge(n)
	}
	if n > 0 {
		logger.From(ctx).Info("expired sessions purged", logger.Component("session.janitor"), logger.Count(n))
	}
	return n, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	logger.Named("session.janitor").Info("session janitor started")
}

// Stop detiene el cron y espera a que termine la pasada en curso.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
