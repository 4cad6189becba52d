package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"clinicslots/internal/domain"
	"clinicslots/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
	pgForeignKeyMissing  = "23503"
)

type BookingRepo struct {
	db *bun.DB
}

func NewBookingRepo(db *bun.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *BookingRepo) InTx(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, bookingTx{tx: tx})
	})
}

func (r *BookingRepo) ListReservations(ctx context.Context, page store.Page) ([]domain.Reservation, error) {
	var rows []domain.Reservation
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("date ASC, start_time ASC, id ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListReservationsByProvider(ctx context.Context, providerID uuid.UUID, page store.Page) ([]domain.Reservation, error) {
	var rows []domain.Reservation
	err := r.db.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		OrderExpr("date ASC, start_time ASC, id ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListReservationsBySubject(ctx context.Context, subjectID uuid.UUID, page store.Page) ([]domain.Reservation, error) {
	var rows []domain.Reservation
	err := r.db.NewSelect().
		Model(&rows).
		Where("subject_id = ?", subjectID).
		OrderExpr("date ASC, start_time ASC, id ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListIntervals(ctx context.Context, page store.Page) ([]domain.AvailabilityInterval, error) {
	var rows []domain.AvailabilityInterval
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("date ASC, start_time ASC, id ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	return getProvider(ctx, r.db, providerID)
}

func (r *BookingRepo) GetSubject(ctx context.Context, subjectID uuid.UUID) (domain.Subject, error) {
	return getSubject(ctx, r.db, subjectID)
}

func (r *BookingRepo) CreateProvider(ctx context.Context, p domain.Provider) (domain.Provider, error) {
	if _, err := r.db.NewInsert().Model(&p).Exec(ctx); err != nil {
		return domain.Provider{}, mapWriteError(err)
	}
	return p, nil
}

func (r *BookingRepo) CreateSubject(ctx context.Context, s domain.Subject) (domain.Subject, error) {
	if _, err := r.db.NewInsert().Model(&s).Exec(ctx); err != nil {
		return domain.Subject{}, mapWriteError(err)
	}
	return s, nil
}

func (r *BookingRepo) ListProviders(ctx context.Context, page store.Page) ([]domain.Provider, error) {
	var rows []domain.Provider
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("username ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BookingRepo) ListSubjects(ctx context.Context, page store.Page) ([]domain.Subject, error) {
	var rows []domain.Subject
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("username ASC").
		Limit(page.Size).
		Offset(page.Offset()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LockProviderDay takes a transaction-scoped advisory lock keyed by provider
// and calendar day. Every writer of that day's intervals or reservations
// holds it from its first check to commit.
func (r bookingTx) LockProviderDay(ctx context.Context, providerID uuid.UUID, date time.Time) error {
	_, err := r.tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", providerDayKey(providerID, date)).Exec(ctx)
	return err
}

func providerDayKey(providerID uuid.UUID, date time.Time) string {
	return providerID.String() + "/" + domain.Date(date).Format(domain.DateFormat)
}

func (r bookingTx) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	return getProvider(ctx, r.tx, providerID)
}

func (r bookingTx) GetSubject(ctx context.Context, subjectID uuid.UUID) (domain.Subject, error) {
	return getSubject(ctx, r.tx, subjectID)
}

func (r bookingTx) GetInterval(ctx context.Context, intervalID uuid.UUID) (domain.AvailabilityInterval, error) {
	var row domain.AvailabilityInterval
	err := r.tx.NewSelect().
		Model(&row).
		Where("id = ?", intervalID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.AvailabilityInterval{}, mapReadError(err)
	}
	return row, nil
}

// FindExactInterval prefers an available interval when both an available and
// a booked one share the bounds.
func (r bookingTx) FindExactInterval(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) (domain.AvailabilityInterval, error) {
	var row domain.AvailabilityInterval
	err := r.tx.NewSelect().
		Model(&row).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Date(date)).
		Where("start_time = ?", span.Start).
		Where("end_time = ?", span.End).
		OrderExpr("(status = ?) DESC, created_at ASC", domain.IntervalAvailable).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.AvailabilityInterval{}, mapReadError(err)
	}
	return row, nil
}

func (r bookingTx) FindOverlappingIntervals(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) ([]domain.AvailabilityInterval, error) {
	var rows []domain.AvailabilityInterval
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Date(date)).
		Where("start_time < ?", span.End).
		Where("end_time > ?", span.Start).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r bookingTx) ListAvailableIntervals(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange) ([]domain.AvailabilityInterval, error) {
	var rows []domain.AvailabilityInterval
	err := r.tx.NewSelect().
		Model(&rows).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Date(date)).
		Where("status = ?", domain.IntervalAvailable).
		Where("start_time < ?", span.End).
		Where("end_time > ?", span.Start).
		OrderExpr("start_time ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r bookingTx) InsertInterval(ctx context.Context, interval domain.AvailabilityInterval) (domain.AvailabilityInterval, error) {
	interval.Date = domain.Date(interval.Date)
	if _, err := r.tx.NewInsert().Model(&interval).Exec(ctx); err != nil {
		return domain.AvailabilityInterval{}, mapWriteError(err)
	}
	return interval, nil
}

func (r bookingTx) UpdateInterval(ctx context.Context, interval domain.AvailabilityInterval) (domain.AvailabilityInterval, error) {
	interval.Date = domain.Date(interval.Date)
	res, err := r.tx.NewUpdate().
		Model(&interval).
		Column("date", "start_time", "end_time", "status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.AvailabilityInterval{}, mapWriteError(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.AvailabilityInterval{}, err
	}
	return interval, nil
}

func (r bookingTx) DeleteInterval(ctx context.Context, intervalID uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.AvailabilityInterval)(nil)).
		Where("id = ?", intervalID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r bookingTx) GetReservation(ctx context.Context, reservationID uuid.UUID) (domain.Reservation, error) {
	var row domain.Reservation
	err := r.tx.NewSelect().
		Model(&row).
		Where("id = ?", reservationID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Reservation{}, mapReadError(err)
	}
	return row, nil
}

func (r bookingTx) ExistsActiveOverlap(ctx context.Context, providerID uuid.UUID, date time.Time, span domain.TimeRange, excludeID uuid.UUID) (bool, error) {
	q := r.tx.NewSelect().
		Model((*domain.Reservation)(nil)).
		Where("provider_id = ?", providerID).
		Where("date = ?", domain.Date(date)).
		Where("status IN (?)", bun.In(domain.ActiveReservationStatuses)).
		Where("start_time < ?", span.End).
		Where("end_time > ?", span.Start)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	return q.Exists(ctx)
}

func (r bookingTx) InsertReservation(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	res.Date = domain.Date(res.Date)
	if _, err := r.tx.NewInsert().Model(&res).Exec(ctx); err != nil {
		return domain.Reservation{}, mapWriteError(err)
	}
	return res, nil
}

func (r bookingTx) UpdateReservation(ctx context.Context, res domain.Reservation) (domain.Reservation, error) {
	res.Date = domain.Date(res.Date)
	result, err := r.tx.NewUpdate().
		Model(&res).
		Column("date", "start_time", "end_time", "status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Reservation{}, mapWriteError(err)
	}
	if err := requireAffected(result); err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

func getProvider(ctx context.Context, db bun.IDB, providerID uuid.UUID) (domain.Provider, error) {
	var row domain.Provider
	err := db.NewSelect().
		Model(&row).
		Where("id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Provider{}, mapReadError(err)
	}
	return row, nil
}

func getSubject(ctx context.Context, db bun.IDB, subjectID uuid.UUID) (domain.Subject, error) {
	var row domain.Subject
	err := db.NewSelect().
		Model(&row).
		Where("id = ?", subjectID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Subject{}, mapReadError(err)
	}
	return row, nil
}

func mapReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapWriteError turns constraint violations into store sentinels. The
// reservations_no_overlap exclusion constraint is what stops a double booking
// that slipped past the advisory lock.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation, pgUniqueViolation:
			return store.ErrConflict
		case pgForeignKeyMissing:
			return store.ErrNotFound
		}
	}
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
