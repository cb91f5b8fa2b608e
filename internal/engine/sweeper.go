package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aspira-app/aspira/api/internal/db"
	"github.com/aspira-app/aspira/api/internal/events"
	"github.com/aspira-app/aspira/api/internal/logging"
	"github.com/aspira-app/aspira/api/internal/metrics"
)

// Sweeper is the timer-driven background task that expires timed-out
// pending actions. It is safe to run from several workers at once: the
// underlying sweep only touches rows still pending, so a race against a
// concurrent confirm resolves to whichever commits first.
type Sweeper struct {
	queries  *db.Queries
	hub      *events.Hub
	logger   *logging.Logger
	interval time.Duration

	now func() time.Time
}

// NewSweeper creates an expiry sweeper
func NewSweeper(queries *db.Queries, hub *events.Hub, logger *logging.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{
		queries:  queries,
		hub:      hub,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps on a ticker until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires every timed-out pending action and notifies owners
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ids, err := s.queries.SweepExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("Expiry sweep failed", err, nil)
		return
	}
	if len(ids) == 0 {
		return
	}

	metrics.RecordExpirySweep(len(ids))
	s.logger.Info("Expired pending actions", map[string]interface{}{
		"count": len(ids),
	})

	for _, id := range ids {
		action, err := s.queries.GetPendingAction(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to load expired action", err, map[string]interface{}{
				"action_id": id,
			})
			continue
		}
		s.hub.Publish(events.Event{Type: events.EventActionUpdated, Action: action})
	}
}
