package address

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/bazaar-labs/bazaar-api/internal/geo"
	"github.com/bazaar-labs/bazaar-api/internal/geocode"
)

type storeAPI interface {
	Get(ctx context.Context, userID, id uuid.UUID) (Address, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Address, error)
	Create(ctx context.Context, a Address) (Address, error)
	Update(ctx context.Context, a Address) (Address, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	ListUnlocated(ctx context.Context, limit int32) ([]Address, error)
	SetLocation(ctx context.Context, id uuid.UUID, p orb.Point) error
}

// Service manages the buyer address book.
type Service struct {
	Store          storeAPI
	Geocoder       geocode.Geocoder
	GeocodeTimeout time.Duration
	Log            zerolog.Logger
}

// Get loads one owned address.
func (s Service) Get(ctx context.Context, userID, id uuid.UUID) (Address, error) {
	if s.Store == nil {
		return Address{}, errors.New("address service not configured")
	}
	return s.Store.Get(ctx, userID, id)
}

// List returns every address of the user.
func (s Service) List(ctx context.Context, userID uuid.UUID) ([]Address, error) {
	if s.Store == nil {
		return nil, errors.New("address service not configured")
	}
	return s.Store.ListByUser(ctx, userID)
}

// Create stores a new address. Coordinates are resolved inline when
// possible; a failed lookup leaves the location unset and the background
// backfill retries later.
func (s Service) Create(ctx context.Context, a Address) (Address, error) {
	if s.Store == nil {
		return Address{}, errors.New("address service not configured")
	}
	if err := validate(&a); err != nil {
		return Address{}, err
	}
	s.locate(ctx, &a)
	return s.Store.Create(ctx, a)
}

// Update rewrites an owned address and re-resolves coordinates when the
// caller did not supply any.
func (s Service) Update(ctx context.Context, a Address) (Address, error) {
	if s.Store == nil {
		return Address{}, errors.New("address service not configured")
	}
	if _, err := s.Store.Get(ctx, a.UserID, a.ID); err != nil {
		return Address{}, err
	}
	if err := validate(&a); err != nil {
		return Address{}, err
	}
	s.locate(ctx, &a)
	return s.Store.Update(ctx, a)
}

// Delete removes an owned address.
func (s Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if s.Store == nil {
		return errors.New("address service not configured")
	}
	return s.Store.Delete(ctx, userID, id)
}

// Backfill retries geocoding for addresses still missing coordinates and
// reports how many were resolved.
func (s Service) Backfill(ctx context.Context, batch int32) (int, error) {
	if s.Store == nil {
		return 0, errors.New("address service not configured")
	}
	if s.Geocoder == nil {
		return 0, nil
	}
	pending, err := s.Store.ListUnlocated(ctx, batch)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, a := range pending {
		p, err := s.Geocoder.Locate(ctx, queryOf(a))
		if err != nil {
			s.Log.Debug().Err(err).Str("address_id", a.ID.String()).Msg("backfill geocode miss")
			continue
		}
		if err := s.Store.SetLocation(ctx, a.ID, p); err != nil {
			return resolved, err
		}
		resolved++
	}
	return resolved, nil
}

func validate(a *Address) error {
	if a.Line1 == "" || a.City == "" || a.PostalCode == "" {
		return fmt.Errorf("line1, city and postal code are required")
	}
	if a.Country == "" {
		a.Country = "IN"
	}
	if !geo.IsUnset(a.Location) {
		if err := geo.Validate(a.Location); err != nil {
			return fmt.Errorf("address location: %w", err)
		}
	}
	return nil
}

func queryOf(a Address) geocode.Query {
	return geocode.Query{
		Line1:      a.Line1,
		City:       a.City,
		StateCode:  a.StateCode,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func (s Service) locate(ctx context.Context, a *Address) {
	if !geo.IsUnset(a.Location) || s.Geocoder == nil {
		return
	}
	timeout := s.GeocodeTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p, err := s.Geocoder.Locate(gctx, queryOf(*a))
	if err != nil {
		s.Log.Warn().Err(err).Msg("address geocode failed, storing without coordinates")
		return
	}
	a.Location = p
}
