package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinicslots/internal/domain"
	"clinicslots/internal/store"
)

// memRepo is an in-memory store.Repository. Transactions are serialised on a
// single mutex and roll back by restoring a snapshot.
type memRepo struct {
	mu sync.Mutex

	providers    map[uuid.UUID]domain.Provider
	subjects     map[uuid.UUID]domain.Subject
	intervals    map[uuid.UUID]domain.AvailabilityInterval
	reservations map[uuid.UUID]domain.Reservation

	locked []string
	failOn map[string]error
	// onLock runs after each provider-day lock while the transaction is open.
	onLock func(r *memRepo)
}

func newMemRepo() *memRepo {
	return &memRepo{
		providers:    map[uuid.UUID]domain.Provider{},
		subjects:     map[uuid.UUID]domain.Subject{},
		intervals:    map[uuid.UUID]domain.AvailabilityInterval{},
		reservations: map[uuid.UUID]domain.Reservation{},
		failOn:       map[string]error{},
	}
}

func (r *memRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	intervals := make(map[uuid.UUID]domain.AvailabilityInterval, len(r.intervals))
	for k, v := range r.intervals {
		intervals[k] = v
	}
	reservations := make(map[uuid.UUID]domain.Reservation, len(r.reservations))
	for k, v := range r.reservations {
		reservations[k] = v
	}

	if err := fn(ctx, memTx{r: r}); err != nil {
		r.intervals = intervals
		r.reservations = reservations
		return err
	}
	return nil
}

func (r *memRepo) ListReservations(ctx context.Context, page store.Page) ([]domain.Reservation, error) {
	return r.listReservations(page, func(domain.Reservation) bool { return true })
}

func (r *memRepo) ListReservationsByProvider(ctx context.Context, providerID uuid.UUID, page store.Page) ([]domain.Reservation, error) {
	return r.listReservations(page, func(res domain.Reservation) bool { return res.ProviderID == providerID })
}

func (r *memRepo) ListReservationsBySubject(ctx context.Context, subjectID uuid.UUID, page store.Page) ([]domain.Reservation, error) {
	return r.listReservations(page, func(res domain.Reservation) bool { return res.SubjectID == subjectID })
}

func (r *memRepo) listReservations(page store.Page, keep func(domain.Reservation) bool) ([]domain.Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failOn["ListReservations"]; err != nil {
		return nil, err
	}

	var rows []domain.Reservation
	for _, res := range r.reservations {
		if keep(res) {
			rows = append(rows, res)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return lessSlot(rows[i].Date, rows[i].StartTime, rows[i].ID, rows[j].Date, rows[j].StartTime, rows[j].ID)
	})
	return paginate(rows, page), nil
}

func (r *memRepo) ListIntervals(ctx context.Context, page store.Page) ([]domain.AvailabilityInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.sortedIntervals()
	return paginate(rows, page), nil
}

func (r *memRepo) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[providerID]
	if !ok {
		return domain.Provider{}, store.ErrNotFound
	}
	return p, nil
}

func (r *memRepo) GetSubject(ctx context.Context, subjectID uuid.UUID) (domain.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subjects[subjectID]
	if !ok {
		return domain.Subject{}, store.ErrNotFound
	}
	return s, nil
}

func (r *memRepo) CreateProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.providers {
		if other.Username == p.Username {
			return domain.Provider{}, store.ErrConflict
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.providers[p.ID] = p
	return p, nil
}

func (r *memRepo) CreateSubject(ctx context.Context, s domain.Subject) (domain.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.subjects {
		if other.Username == s.Username {
			return domain.Subject{}, store.ErrConflict
		}
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.subjects[s.ID] = s
	return s, nil
}

func (r *memRepo) ListProviders(ctx context.Context, page store.Page) ([]domain.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Username < rows[j].Username })
	return paginate(rows, page), nil
}

func (r *memRepo) ListSubjects(ctx context.Context, page store.Page) ([]domain.Subject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failOn["ListSubjects"]; err != nil {
		return nil, err
	}
	rows := make([]domain.Subject, 0, len(r.subjects))
	for _, s := range r.subjects {
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Username < rows[j].Username })
	return paginate(rows, page), nil
}

func (r *memRepo) sortedIntervals() []domain.AvailabilityInterval {
	rows := make([]domain.AvailabilityInterval, 0, len(r.intervals))
	for _, iv := range r.intervals {
		rows = append(rows, iv)
	}
	sort.Slice(rows, func(i, j int) bool {
		return lessSlot(rows[i].Date, rows[i].StartTime, rows[i].ID, rows[j].Date, rows[j].StartTime, rows[j].ID)
	})
	return rows
}

// available returns the open ranges of providerID on date in start order.
func (r *memRepo) available(providerID uuid.UUID, date time.Time) []domain.TimeRange {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TimeRange
	for _, iv := range r.sortedIntervals() {
		if iv.ProviderID == providerID && iv.Date.Equal(date) && iv.Status == domain.IntervalAvailable {
			out = append(out, iv.Range())
		}
	}
	return out
}

func (r *memRepo) intervalsOn(providerID uuid.UUID, date time.Time) []domain.AvailabilityInterval {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AvailabilityInterval
	for _, iv := range r.sortedIntervals() {
		if iv.ProviderID == providerID && iv.Date.Equal(date) {
			out = append(out, iv)
		}
	}
	return out
}

func (r *memRepo) reservation(id uuid.UUID) (domain.Reservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	return res, ok
}

func (r *memRepo) reservationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reservations)
}

func lessSlot(da time.Time, sa domain.Clock, ia uuid.UUID, db time.Time, sb domain.Clock, ib uuid.UUID) bool {
	if !da.Equal(db) {
		return da.Before(db)
	}
	if sa != sb {
		return sa < sb
	}
	return ia.String() < ib.String()
}

func paginate[T any](rows []T, page store.Page) []T {
	start := page.Offset()
	if start >= len(rows) {
		return nil
	}
	end := start + page.Size
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

type memTx struct {
	r *memRepo
}

func (t memTx) fail(op string) error {
	return t.r.failOn[op]
}

func (t memTx) LockProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) error {
	if err := t.fail("LockProviderDay"); err != nil {
		return err
	}
	t.r.locked = append(t.r.locked, providerID.String()+"/"+domain.Date(date).Format(domain.DateFormat))
	if t.r.onLock != nil {
		t.r.onLock(t.r)
	}
	return nil
}

func (t memTx) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	p, ok := t.r.providers[providerID]
	if !ok {
		return domain.Provider{}, store.ErrNotFound
	}
	return p, nil
}

func (t memTx) GetSubject(ctx context.Context, subjectID uuid.UUID) (domain.Subject, error) {
	s, ok := t.r.subjects[subjectID]
	if !ok {
		return domain.Subject{}, store.ErrNotFound
	}
	return s, nil
}

func (t memTx) GetInterval(ctx context.Context, intervalID uuid.UUID) (domain.AvailabilityInterval, error) {
	iv, ok := t.r.intervals[intervalID]
	if !ok {
		return domain.AvailabilityInterval{}, store.ErrNotFound
	}
	return iv, nil
}

func (t memTx) FindExactInterval(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) (domain.AvailabilityInterval, error) {
	var (
		found domain.AvailabilityInterval
		ok    bool
	)
	for _, iv := range t.r.sortedIntervals() {
		if iv.ProviderID != providerID || !iv.Date.Equal(domain.Date(date)) || iv.Range() != span {
			continue
		}
		if iv.Status == domain.IntervalAvailable {
			return iv, nil
		}
		if !ok {
			found, ok = iv, true
		}
	}
	if !ok {
		return domain.AvailabilityInterval{}, store.ErrNotFound
	}
	return found, nil
}

func (t memTx) FindOverlappingIntervals(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) ([]domain.AvailabilityInterval, error) {
	var out []domain.AvailabilityInterval
	for _, iv := range t.r.sortedIntervals() {
		if iv.ProviderID == providerID && iv.Date.Equal(domain.Date(date)) && iv.Range().Overlaps(span) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (t memTx) ListAvailableIntervals(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) ([]domain.AvailabilityInterval, error) {
	all, _ := t.FindOverlappingIntervals(ctx, providerID, date, span)
	var out []domain.AvailabilityInterval
	for _, iv := range all {
		if iv.Status == domain.IntervalAvailable {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (t memTx) InsertInterval(ctx context.Context, iv domain.AvailabilityInterval) (domain.AvailabilityInterval, error) {
	if err := t.fail("InsertInterval"); err != nil {
		return domain.AvailabilityInterval{}, err
	}
	iv.Date = domain.Date(iv.Date)
	if iv.Status == domain.IntervalAvailable {
		for _, other := range t.r.intervals {
			if other.ProviderID == iv.ProviderID && other.Date.Equal(iv.Date) && other.Range() == iv.Range() && other.Status == domain.IntervalAvailable {
				return domain.AvailabilityInterval{}, store.ErrConflict
			}
		}
	}
	iv.ID = uuid.New()
	t.r.intervals[iv.ID] = iv
	return iv, nil
}

func (t memTx) UpdateInterval(ctx context.Context, iv domain.AvailabilityInterval) (domain.AvailabilityInterval, error) {
	if err := t.fail("UpdateInterval"); err != nil {
		return domain.AvailabilityInterval{}, err
	}
	if _, ok := t.r.intervals[iv.ID]; !ok {
		return domain.AvailabilityInterval{}, store.ErrNotFound
	}
	iv.Date = domain.Date(iv.Date)
	t.r.intervals[iv.ID] = iv
	return iv, nil
}

func (t memTx) DeleteInterval(ctx context.Context, intervalID uuid.UUID) error {
	if err := t.fail("DeleteInterval"); err != nil {
		return err
	}
	if _, ok := t.r.intervals[intervalID]; !ok {
		return store.ErrNotFound
	}
	delete(t.r.intervals, intervalID)
	return nil
}

func (t memTx) GetReservation(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	res, ok := t.r.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, store.ErrNotFound
	}
	return res, nil
}

func (t memTx) ExistsActiveOverlap(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange, excludeID uuid.UUID) (bool, error) {
	for _, res := range t.r.reservations {
		if res.ID == excludeID || res.ProviderID != providerID || !res.Date.Equal(domain.Date(date)) {
			continue
		}
		if res.Active() && res.Range().Overlaps(span) {
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) InsertReservation(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	if err := t.fail("InsertReservation"); err != nil {
		return domain.Reservation{}, err
	}
	res.Date = domain.Date(res.Date)
	res.ID = uuid.New()
	t.r.reservations[res.ID] = res
	return res, nil
}

func (t memTx) UpdateReservation(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	if err := t.fail("UpdateReservation"); err != nil {
		return domain.Reservation{}, err
	}
	if _, ok := t.r.reservations[res.ID]; !ok {
		return domain.Reservation{}, store.ErrNotFound
	}
	res.Date = domain.Date(res.Date)
	t.r.reservations[res.ID] = res
	return res, nil
}
