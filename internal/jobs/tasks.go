// Package jobs holds the asynq background tasks: the coupon expiry
// sweep and the address geocode backfill.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task type names. Periodic tasks are scheduled by the worker itself.
const (
	TypeCouponExpireSweep = "coupon:expire_sweep"
	TypeGeocodeBackfill   = "address:geocode_backfill"
)

type geocodeBackfillPayload struct {
	Batch int32 `json:"batch"`
}

// NewCouponExpireSweepTask builds the periodic coupon expiry sweep.
func NewCouponExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCouponExpireSweep, nil, asynq.MaxRetry(3))
}

// NewGeocodeBackfillTask builds a geocode backfill run over at most
// batch pending addresses.
func NewGeocodeBackfillTask(batch int32) (*asynq.Task, error) {
	payload, err := json.Marshal(geocodeBackfillPayload{Batch: batch})
	if err != nil {
		return nil, fmt.Errorf("marshal backfill payload: %w", err)
	}
	return asynq.NewTask(TypeGeocodeBackfill, payload, asynq.MaxRetry(3)), nil
}
