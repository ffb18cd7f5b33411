package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/City-of-Helsinki/haravajarjestelma/internal/calendar"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/clock"
	"github.com/City-of-Helsinki/haravajarjestelma/internal/domain"
)

// MemoryStore keeps zones, blocked dates and events in process memory. It
// backs local development and service tests. WithTx serialises units of work,
// which stands in for the zone row lock.
type MemoryStore struct {
	clock clock.Clock

	txMu sync.Mutex
	mu   sync.RWMutex

	zones        map[int64]*domain.ContractZone
	zoneShapes   map[int64]orb.MultiPolygon
	blockedDates map[int64]*domain.BlockedDate
	events       map[uuid.UUID]*domain.Event

	nextZoneID    int64
	nextBlockedID int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &MemoryStore{
		clock:        clk,
		zones:        make(map[int64]*domain.ContractZone),
		zoneShapes:   make(map[int64]orb.MultiPolygon),
		blockedDates: make(map[int64]*domain.BlockedDate),
		events:       make(map[uuid.UUID]*domain.Event),
	}
}

type memoryTxKey struct{}

// WithTx runs fn while holding the store's transaction mutex
func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(context.WithValue(ctx, memoryTxKey{}, true))
}

// Zones returns the store's ZoneRepository
func (s *MemoryStore) Zones() *MemoryZoneRepository { return &MemoryZoneRepository{s: s} }

// BlockedDates returns the store's BlockedDateRepository
func (s *MemoryStore) BlockedDates() *MemoryBlockedDateRepository {
	return &MemoryBlockedDateRepository{s: s}
}

// Events returns the store's EventRepository
func (s *MemoryStore) Events() *MemoryEventRepository { return &MemoryEventRepository{s: s} }

func toOrbMultiPolygon(mp [][][][]float64) orb.MultiPolygon {
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		p := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			r := make(orb.Ring, 0, len(ring))
			for _, c := range ring {
				if len(c) < 2 {
					continue
				}
				r = append(r, orb.Point{c[0], c[1]})
			}
			p = append(p, r)
		}
		out = append(out, p)
	}
	return out
}

func cloneZone(z *domain.ContractZone) *domain.ContractZone {
	c := *z
	c.ContractorIDs = append([]string(nil), z.ContractorIDs...)
	return &c
}

// MemoryZoneRepository implements ZoneRepository in memory
type MemoryZoneRepository struct {
	s *MemoryStore
}

func (r *MemoryZoneRepository) Create(ctx context.Context, zone *domain.ContractZone) error {
	boundary, err := domain.NormalizeBoundary(zone.Boundary)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextZoneID++
	now := r.s.clock.Now()
	zone.ID = r.s.nextZoneID
	zone.Boundary = boundary
	zone.CreatedAt = now
	zone.ModifiedAt = now
	r.s.zones[zone.ID] = cloneZone(zone)
	r.s.zoneShapes[zone.ID] = toOrbMultiPolygon(boundary.MultiPolygon)
	return nil
}

func (r *MemoryZoneRepository) GetByID(ctx context.Context, id int64) (*domain.ContractZone, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	z, ok := r.s.zones[id]
	if !ok {
		return nil, domain.ErrZoneNotFound
	}
	return cloneZone(z), nil
}

func (r *MemoryZoneRepository) List(ctx context.Context, activeOnly bool) ([]*domain.ContractZone, error) {
	return r.filter(func(z *domain.ContractZone) bool {
		return !activeOnly || z.Active
	}), nil
}

func (r *MemoryZoneRepository) FindContaining(ctx context.Context, p domain.Point, activeOnly bool) ([]*domain.ContractZone, error) {
	pt := orb.Point{p.Lon, p.Lat}
	return r.filter(func(z *domain.ContractZone) bool {
		if activeOnly && !z.Active {
			return false
		}
		return planar.MultiPolygonContains(r.s.zoneShapes[z.ID], pt)
	}), nil
}

func (r *MemoryZoneRepository) filter(keep func(*domain.ContractZone) bool) []*domain.ContractZone {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.ContractZone
	for _, z := range r.s.zones {
		if keep(z) {
			out = append(out, cloneZone(z))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lock only checks existence; MemoryStore.WithTx already serialises writers
func (r *MemoryZoneRepository) Lock(ctx context.Context, id int64) error {
	_, err := r.GetByID(ctx, id)
	return err
}

func (r *MemoryZoneRepository) UpdateContacts(ctx context.Context, zone *domain.ContractZone) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	z, ok := r.s.zones[zone.ID]
	if !ok {
		return domain.ErrZoneNotFound
	}
	z.Name = zone.Name
	z.Active = zone.Active
	z.ContactPerson = zone.ContactPerson
	z.Email = zone.Email
	z.SecondaryEmail = zone.SecondaryEmail
	z.Phone = zone.Phone
	z.ModifiedAt = r.s.clock.Now()
	zone.ModifiedAt = z.ModifiedAt
	return nil
}

// MemoryBlockedDateRepository implements BlockedDateRepository in memory
type MemoryBlockedDateRepository struct {
	s *MemoryStore
}

func (r *MemoryBlockedDateRepository) Create(ctx context.Context, bd *domain.BlockedDate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.zones[bd.ContractZoneID]; !ok {
		return domain.ErrZoneNotFound
	}
	for _, existing := range r.s.blockedDates {
		if existing.ContractZoneID == bd.ContractZoneID && existing.Date == bd.Date {
			return domain.ErrBlockedDateExists
		}
	}
	r.s.nextBlockedID++
	bd.ID = r.s.nextBlockedID
	bd.CreatedAt = r.s.clock.Now()
	c := *bd
	r.s.blockedDates[bd.ID] = &c
	return nil
}

func (r *MemoryBlockedDateRepository) GetByID(ctx context.Context, id int64) (*domain.BlockedDate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	bd, ok := r.s.blockedDates[id]
	if !ok {
		return nil, domain.ErrBlockedDateNotFound
	}
	c := *bd
	return &c, nil
}

func (r *MemoryBlockedDateRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.blockedDates[id]; !ok {
		return domain.ErrBlockedDateNotFound
	}
	delete(r.s.blockedDates, id)
	return nil
}

func (r *MemoryBlockedDateRepository) ListByZone(ctx context.Context, zoneID int64, rng calendar.Range) ([]*domain.BlockedDate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.BlockedDate
	for _, bd := range r.s.blockedDates {
		if bd.ContractZoneID == zoneID && rng.Contains(bd.Date) {
			c := *bd
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// MemoryEventRepository implements EventRepository in memory
type MemoryEventRepository struct {
	s *MemoryStore
}

// Create stores e. A preset CreatedAt is kept so tests can seed history.
func (r *MemoryEventRepository) Create(ctx context.Context, e *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.zones[e.ContractZoneID]; !ok {
		return domain.ErrZoneNotFound
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := r.s.clock.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.ModifiedAt = now
	r.s.events[e.ID] = e.Clone()
	return nil
}

func (r *MemoryEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return e.Clone(), nil
}

func (r *MemoryEventRepository) Update(ctx context.Context, e *domain.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.events[e.ID]
	if !ok {
		return domain.ErrEventNotFound
	}
	updated := e.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.ApprovalCreationReminderSentAt = stored.ApprovalCreationReminderSentAt
	updated.ApprovalDeadlineReminderSentAt = stored.ApprovalDeadlineReminderSentAt
	updated.EventReminderSentAt = stored.EventReminderSentAt
	updated.ModifiedAt = r.s.clock.Now()
	r.s.events[e.ID] = updated
	e.ModifiedAt = updated.ModifiedAt
	return nil
}

func (r *MemoryEventRepository) List(ctx context.Context, filter *EventFilter, limit, offset int) ([]*domain.Event, int, error) {
	all := r.filter(func(e *domain.Event) bool {
		if filter == nil {
			return true
		}
		if filter.State != "" && e.State != filter.State {
			return false
		}
		if filter.ContractZoneID != 0 && e.ContractZoneID != filter.ContractZoneID {
			return false
		}
		if filter.StartsAfter != nil && !e.StartTime.After(*filter.StartsAfter) {
			return false
		}
		if filter.StartsBefore != nil && !e.StartTime.Before(*filter.StartsBefore) {
			return false
		}
		return true
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *MemoryEventRepository) ListOverlapping(ctx context.Context, zoneID int64, from, to time.Time, exclude *uuid.UUID) ([]*domain.Event, error) {
	return r.filter(func(e *domain.Event) bool {
		if e.ContractZoneID != zoneID {
			return false
		}
		if exclude != nil && e.ID == *exclude {
			return false
		}
		return e.StartTime.Before(to) && !e.EndTime.Before(from)
	}), nil
}

func (r *MemoryEventRepository) ListPendingApproval(ctx context.Context, now time.Time) ([]*domain.Event, error) {
	return r.filter(func(e *domain.Event) bool {
		return e.State == domain.EventStateWaitingForApproval && e.StartTime.After(now)
	}), nil
}

func (r *MemoryEventRepository) ListUpcomingWithoutReminder(ctx context.Context, now time.Time) ([]*domain.Event, error) {
	return r.filter(func(e *domain.Event) bool {
		return e.StartTime.After(now) && e.EventReminderSentAt == nil
	}), nil
}

func (r *MemoryEventRepository) MarkApprovalRemindersSent(ctx context.Context, id uuid.UUID, creation, deadline bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil
	}
	if creation && e.ApprovalCreationReminderSentAt == nil {
		t := at
		e.ApprovalCreationReminderSentAt = &t
	}
	if deadline && e.ApprovalDeadlineReminderSentAt == nil {
		t := at
		e.ApprovalDeadlineReminderSentAt = &t
	}
	return nil
}

func (r *MemoryEventRepository) MarkEventReminderSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok || e.EventReminderSentAt != nil {
		return false, nil
	}
	t := at
	e.EventReminderSentAt = &t
	return true, nil
}

func (r *MemoryEventRepository) CountAnonymizable(ctx context.Context, cutoff time.Time) (int, error) {
	return len(r.filter(func(e *domain.Event) bool {
		return anonymizable(e, cutoff)
	})), nil
}

func (r *MemoryEventRepository) Anonymize(ctx context.Context, cutoff, now time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.events {
		if anonymizable(e, cutoff) {
			e.Anonymize(now)
			n++
		}
	}
	return n, nil
}

func anonymizable(e *domain.Event, cutoff time.Time) bool {
	return !e.EndTime.After(cutoff) && !e.IsAnonymized()
}

func (r *MemoryEventRepository) filter(keep func(*domain.Event) bool) []*domain.Event {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Event
	for _, e := range r.s.events {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
