package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/bazaar-labs/bazaar-api/internal/events"
)

type couponSweeper interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type addressBackfiller interface {
	Backfill(ctx context.Context, batch int32) (int, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// Handlers executes the background tasks against the domain services.
type Handlers struct {
	Coupons      couponSweeper
	Addresses    addressBackfiller
	Bus          eventEmitter
	DefaultBatch int32
	Log          zerolog.Logger
	Now          func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// HandleCouponExpireSweep flips coupons whose window has closed to
// expired and emits one audit event per sweep that changed anything.
func (h Handlers) HandleCouponExpireSweep(ctx context.Context, _ *asynq.Task) error {
	if h.Coupons == nil {
		return errors.New("jobs: coupon sweeper not configured")
	}
	expired, err := h.Coupons.ExpireDue(ctx, h.now())
	if err != nil {
		return fmt.Errorf("coupon expire sweep: %w", err)
	}
	if expired == 0 {
		return nil
	}
	h.Log.Info().Int64("expired", expired).Msg("coupon expiry sweep")
	if h.Bus != nil {
		payload := map[string]any{"expired": expired}
		if _, err := h.Bus.Emit(ctx, events.TopicCouponExpired, uuid.New(), payload); err != nil {
			h.Log.Warn().Err(err).Msg("coupon expired event failed")
		}
	}
	return nil
}

// HandleGeocodeBackfill retries geocoding for addresses and vendors
// that were stored without coordinates.
func (h Handlers) HandleGeocodeBackfill(ctx context.Context, t *asynq.Task) error {
	if h.Addresses == nil {
		return errors.New("jobs: address backfiller not configured")
	}
	batch := h.DefaultBatch
	if len(t.Payload()) > 0 {
		var p geocodeBackfillPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("decode backfill payload: %w", err)
		}
		if p.Batch > 0 {
			batch = p.Batch
		}
	}
	if batch <= 0 {
		batch = 50
	}
	resolved, err := h.Addresses.Backfill(ctx, batch)
	if err != nil {
		return fmt.Errorf("geocode backfill: %w", err)
	}
	if resolved > 0 {
		h.Log.Info().Int("resolved", resolved).Msg("geocode backfill")
	}
	return nil
}

// NewMux registers the task handlers on an asynq mux.
func NewMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeCouponExpireSweep, h.HandleCouponExpireSweep)
	mux.HandleFunc(TypeGeocodeBackfill, h.HandleGeocodeBackfill)
	return mux
}

// ScheduleEntry is one periodic task registration.
type ScheduleEntry struct {
	Every time.Duration
	Task  *asynq.Task
}

// NewScheduler registers the periodic sweeps on an asynq scheduler.
func NewScheduler(redis asynq.RedisConnOpt, entries []ScheduleEntry, log zerolog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{})
	for _, e := range entries {
		if e.Every <= 0 || e.Task == nil {
			continue
		}
		spec := fmt.Sprintf("@every %s", e.Every)
		if _, err := scheduler.Register(spec, e.Task); err != nil {
			return nil, fmt.Errorf("register %s: %w", e.Task.Type(), err)
		}
		log.Info().Str("task", e.Task.Type()).Dur("every", e.Every).Msg("scheduled task")
	}
	return scheduler, nil
}
