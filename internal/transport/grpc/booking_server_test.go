package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"clinicslots/internal/auth"
	"clinicslots/internal/domain"
	"clinicslots/internal/service/booking"
)

type fakeBookingService struct {
	bookFn               func(ctx context.Context, in booking.BookInput) (domain.Reservation, error)
	rescheduleFn         func(ctx context.Context, in booking.RescheduleInput) (domain.Reservation, error)
	cancelFn             func(ctx context.Context, reservationID, subjectID uuid.UUID, requester auth.Principal) (booking.Confirmation, error)
	addAvailabilityFn    func(ctx context.Context, in booking.AddAvailabilityInput) (domain.AvailabilityInterval, error)
	updateAvailabilityFn func(ctx context.Context, intervalID uuid.UUID, patch booking.AvailabilityPatch, requester auth.Principal) (domain.AvailabilityInterval, error)
	deleteAvailabilityFn func(ctx context.Context, intervalID uuid.UUID, requester auth.Principal) (booking.Confirmation, error)
	listReservationsFn   func(ctx context.Context, filter booking.ReservationFilter, page, size int, requester auth.Principal) ([]domain.Reservation, error)
	listAvailabilityFn   func(ctx context.Context, page, size int) ([]domain.AvailabilityInterval, error)
	registerProviderFn   func(ctx context.Context, in booking.RegisterProviderInput) (domain.Provider, error)
	listProvidersFn      func(ctx context.Context, page, size int) ([]domain.Provider, error)
	registerSubjectFn    func(ctx context.Context, in booking.RegisterSubjectInput) (domain.Subject, error)
	listSubjectsFn       func(ctx context.Context, page, size int, requester auth.Principal) ([]domain.Subject, error)
}

func (f *fakeBookingService) Book(ctx context.Context, in booking.BookInput) (domain.Reservation, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, in)
}

func (f *fakeBookingService) Reschedule(ctx context.Context, in booking.RescheduleInput) (domain.Reservation, error) {
	if f.rescheduleFn == nil {
		panic("Reschedule not configured")
	}
	return f.rescheduleFn(ctx, in)
}

func (f *fakeBookingService) Cancel(ctx context.Context, reservationID, subjectID uuid.UUID, requester auth.Principal) (booking.Confirmation, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, reservationID, subjectID, requester)
}

func (f *fakeBookingService) AddAvailability(ctx context.Context, in booking.AddAvailabilityInput) (domain.AvailabilityInterval, error) {
	if f.addAvailabilityFn == nil {
		panic("AddAvailability not configured")
	}
	return f.addAvailabilityFn(ctx, in)
}

func (f *fakeBookingService) UpdateAvailability(ctx context.Context, intervalID uuid.UUID, patch booking.AvailabilityPatch, requester auth.Principal) (domain.AvailabilityInterval, error) {
	if f.updateAvailabilityFn == nil {
		panic("UpdateAvailability not configured")
	}
	return f.updateAvailabilityFn(ctx, intervalID, patch, requester)
}

func (f *fakeBookingService) DeleteAvailability(ctx context.Context, intervalID uuid.UUID, requester auth.Principal) (booking.Confirmation, error) {
	if f.deleteAvailabilityFn == nil {
		panic("DeleteAvailability not configured")
	}
	return f.deleteAvailabilityFn(ctx, intervalID, requester)
}

func (f *fakeBookingService) ListReservations(ctx context.Context, filter booking.ReservationFilter, page, size int, requester auth.Principal) ([]domain.Reservation, error) {
	if f.listReservationsFn == nil {
		panic("ListReservations not configured")
	}
	return f.listReservationsFn(ctx, filter, page, size, requester)
}

func (f *fakeBookingService) ListAvailability(ctx context.Context, page, size int) ([]domain.AvailabilityInterval, error) {
	if f.listAvailabilityFn == nil {
		panic("ListAvailability not configured")
	}
	return f.listAvailabilityFn(ctx, page, size)
}

func (f *fakeBookingService) RegisterProvider(ctx context.Context, in booking.RegisterProviderInput) (domain.Provider, error) {
	if f.registerProviderFn == nil {
		panic("RegisterProvider not configured")
	}
	return f.registerProviderFn(ctx, in)
}

func (f *fakeBookingService) ListProviders(ctx context.Context, page, size int) ([]domain.Provider, error) {
	if f.listProvidersFn == nil {
		panic("ListProviders not configured")
	}
	return f.listProvidersFn(ctx, page, size)
}

func (f *fakeBookingService) RegisterSubject(ctx context.Context, in booking.RegisterSubjectInput) (domain.Subject, error) {
	if f.registerSubjectFn == nil {
		panic("RegisterSubject not configured")
	}
	return f.registerSubjectFn(ctx, in)
}

func (f *fakeBookingService) ListSubjects(ctx context.Context, page, size int, requester auth.Principal) ([]domain.Subject, error) {
	if f.listSubjectsFn == nil {
		panic("ListSubjects not configured")
	}
	return f.listSubjectsFn(ctx, page, size, requester)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{booking.ErrProviderNotFound, codes.NotFound},
		{booking.ErrSubjectNotFound, codes.NotFound},
		{booking.ErrReservationNotFound, codes.NotFound},
		{booking.ErrIntervalNotFound, codes.NotFound},
		{booking.ErrInvalidTimeRange, codes.InvalidArgument},
		{&booking.ValidationError{}, codes.InvalidArgument},
		{booking.ErrSlotUnavailable, codes.FailedPrecondition},
		{booking.ErrSlotAlreadyBooked, codes.FailedPrecondition},
		{booking.ErrReservationInactive, codes.FailedPrecondition},
		{booking.ErrUnauthorized, codes.PermissionDenied},
		{booking.ErrAlreadyRegistered, codes.AlreadyExists},
		{&booking.StorageError{Op: "book", Err: context.DeadlineExceeded}, codes.Unavailable},
		{&booking.StorageError{Op: "book", Err: errors.New("boom")}, codes.Internal},
		{fmt.Errorf("wrapped: %w", booking.ErrSlotAlreadyBooked), codes.FailedPrecondition},
	}

	for _, tt := range tests {
		if got := codeFor(tt.err); got != tt.want {
			t.Fatalf("codeFor(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestBook_RejectsMalformedInputWithoutCallingService(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, auth.DefaultHeaders, discardLogger())
	valid := BookRequest{
		ProviderID: uuid.NewString(),
		SubjectID:  uuid.NewString(),
		Date:       "2026-01-05",
		StartTime:  "09:00",
		EndTime:    "10:00",
	}

	tests := []struct {
		name   string
		mutate func(r *BookRequest)
	}{
		{name: "provider", mutate: func(r *BookRequest) { r.ProviderID = "seven" }},
		{name: "subject", mutate: func(r *BookRequest) { r.SubjectID = "" }},
		{name: "date", mutate: func(r *BookRequest) { r.Date = "05/01/2026" }},
		{name: "start", mutate: func(r *BookRequest) { r.StartTime = "9am" }},
		{name: "end", mutate: func(r *BookRequest) { r.EndTime = "25:00" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := srv.Book(context.Background(), &req)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %v, want %v", status.Code(err), codes.InvalidArgument)
			}
		})
	}

	if _, err := srv.Book(context.Background(), nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("nil request code = %v, want %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestBook_PassesRequesterFromMetadata(t *testing.T) {
	providerID := uuid.New()
	subjectID := uuid.New()

	var got booking.BookInput
	srv := NewBookingServer(&fakeBookingService{
		bookFn: func(ctx context.Context, in booking.BookInput) (domain.Reservation, error) {
			got = in
			return domain.Reservation{
				ID:         uuid.New(),
				ProviderID: in.ProviderID,
				SubjectID:  in.SubjectID,
				Date:       in.Date,
				StartTime:  in.Start,
				EndTime:    in.End,
				Status:     domain.ReservationBooked,
			}, nil
		},
	}, auth.DefaultHeaders, discardLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user", "amy", "x-roles", "patient"))
	resp, err := srv.Book(ctx, &BookRequest{
		ProviderID: providerID.String(),
		SubjectID:  subjectID.String(),
		Date:       "2026-01-05",
		StartTime:  "09:30",
		EndTime:    "10:30",
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}

	if got.Requester.Username != "amy" || !got.Requester.HasRole(auth.RolePatient) {
		t.Fatalf("requester = %+v", got.Requester)
	}
	if got.ProviderID != providerID || got.Start != domain.NewClock(9, 30, 0) || got.End != domain.NewClock(10, 30, 0) {
		t.Fatalf("input = %+v", got)
	}
	r := resp.Reservation
	if r.Date != "2026-01-05" || r.StartTime != "09:30" || r.EndTime != "10:30" || r.Status != "booked" {
		t.Fatalf("reservation = %+v", r)
	}
}

func TestBook_MapsEngineErrors(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{booking.ErrSlotAlreadyBooked, codes.FailedPrecondition},
		{booking.ErrUnauthorized, codes.PermissionDenied},
		{booking.ErrProviderNotFound, codes.NotFound},
		{&booking.StorageError{Op: "book", Err: errors.New("connection refused")}, codes.Internal},
	}

	for _, tt := range tests {
		srv := NewBookingServer(&fakeBookingService{
			bookFn: func(ctx context.Context, in booking.BookInput) (domain.Reservation, error) {
				return domain.Reservation{}, tt.err
			},
		}, auth.DefaultHeaders, discardLogger())

		_, err := srv.Book(context.Background(), &BookRequest{
			ProviderID: uuid.NewString(),
			SubjectID:  uuid.NewString(),
			Date:       "2026-01-05",
			StartTime:  "09:00",
			EndTime:    "10:00",
		})
		if status.Code(err) != tt.want {
			t.Fatalf("%v: code = %v, want %v", tt.err, status.Code(err), tt.want)
		}
		if tt.want == codes.Internal && status.Convert(err).Message() != "internal error" {
			t.Fatalf("internal error leaked detail: %q", status.Convert(err).Message())
		}
	}
}

func TestUpdateAvailability_OnlyPatchesProvidedFields(t *testing.T) {
	id := uuid.New()
	var got booking.AvailabilityPatch
	srv := NewBookingServer(&fakeBookingService{
		updateAvailabilityFn: func(ctx context.Context, intervalID uuid.UUID, patch booking.AvailabilityPatch, requester auth.Principal) (domain.AvailabilityInterval, error) {
			got = patch
			return domain.AvailabilityInterval{ID: intervalID, Status: domain.IntervalAvailable}, nil
		},
	}, auth.DefaultHeaders, discardLogger())

	end := "11:00"
	if _, err := srv.UpdateAvailability(context.Background(), &UpdateAvailabilityRequest{IntervalID: id.String(), EndTime: &end}); err != nil {
		t.Fatalf("UpdateAvailability error: %v", err)
	}
	if got.Date != nil || got.Start != nil || got.End == nil || *got.End != domain.NewClock(11, 0, 0) {
		t.Fatalf("patch = %+v", got)
	}
}

func TestListReservations_DefaultsPageSizeAndFilter(t *testing.T) {
	providerID := uuid.New()
	var (
		gotFilter booking.ReservationFilter
		gotSize   int
	)
	srv := NewBookingServer(&fakeBookingService{
		listReservationsFn: func(ctx context.Context, filter booking.ReservationFilter, page, size int, requester auth.Principal) ([]domain.Reservation, error) {
			gotFilter = filter
			gotSize = size
			return nil, nil
		},
	}, auth.DefaultHeaders, discardLogger())

	resp, err := srv.ListReservations(context.Background(), &ListReservationsRequest{ProviderID: providerID.String()})
	if err != nil {
		t.Fatalf("ListReservations error: %v", err)
	}
	if gotSize != booking.DefaultPageSize {
		t.Fatalf("size = %d, want %d", gotSize, booking.DefaultPageSize)
	}
	if gotFilter.ProviderID == nil || *gotFilter.ProviderID != providerID || gotFilter.SubjectID != nil {
		t.Fatalf("filter = %+v", gotFilter)
	}
	if resp.Reservations == nil {
		t.Fatalf("reservations should be an empty list, not nil")
	}
}

func TestRegisterProvider_PassesRequesterAndMapsConflict(t *testing.T) {
	var got booking.RegisterProviderInput
	srv := NewBookingServer(&fakeBookingService{
		registerProviderFn: func(ctx context.Context, in booking.RegisterProviderInput) (domain.Provider, error) {
			got = in
			if in.Username == "dr.seven" {
				return domain.Provider{}, booking.ErrAlreadyRegistered
			}
			return domain.Provider{ID: uuid.New(), Username: in.Username, Name: in.Name, Specialization: in.Specialization}, nil
		},
	}, auth.DefaultHeaders, discardLogger())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user", "dr.ten", "x-roles", "doctor"))
	resp, err := srv.RegisterProvider(ctx, &RegisterProviderRequest{Username: "dr.ten", Name: "Ten", Specialization: "GP"})
	if err != nil {
		t.Fatalf("RegisterProvider error: %v", err)
	}
	if !got.Requester.HasRole(auth.RoleDoctor) || got.Requester.Username != "dr.ten" {
		t.Fatalf("requester = %+v", got.Requester)
	}
	if resp.Provider.Username != "dr.ten" || resp.Provider.Specialization != "GP" || resp.Provider.ID == "" {
		t.Fatalf("provider = %+v", resp.Provider)
	}

	_, err = srv.RegisterProvider(ctx, &RegisterProviderRequest{Username: "dr.seven", Name: "Seven"})
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.AlreadyExists)
	}
}

func TestListSubjects_ForwardsRequesterAndRefusal(t *testing.T) {
	var gotSize int
	srv := NewBookingServer(&fakeBookingService{
		listSubjectsFn: func(ctx context.Context, page, size int, requester auth.Principal) ([]domain.Subject, error) {
			gotSize = size
			if !requester.HasRole(auth.RoleDoctor) {
				return nil, booking.ErrUnauthorized
			}
			return []domain.Subject{{ID: uuid.New(), Username: "amy", Name: "Amy"}}, nil
		},
	}, auth.DefaultHeaders, discardLogger())

	doctor := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user", "dr.seven", "x-roles", "doctor"))
	resp, err := srv.ListSubjects(doctor, &ListSubjectsRequest{})
	if err != nil {
		t.Fatalf("ListSubjects error: %v", err)
	}
	if gotSize != booking.DefaultPageSize || len(resp.Subjects) != 1 || resp.Subjects[0].Username != "amy" {
		t.Fatalf("size = %d subjects = %+v", gotSize, resp.Subjects)
	}

	patient := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user", "amy", "x-roles", "patient"))
	if _, err := srv.ListSubjects(patient, &ListSubjectsRequest{}); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("code = %v, want %v", status.Code(err), codes.PermissionDenied)
	}
}

func TestBookingService_OverBufconn(t *testing.T) {
	subjectID := uuid.New()
	reservationID := uuid.New()

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterBookingServiceServer(s, NewBookingServer(&fakeBookingService{
		cancelFn: func(ctx context.Context, id, subject uuid.UUID, requester auth.Principal) (booking.Confirmation, error) {
			if id != reservationID || subject != subjectID {
				return booking.Confirmation{}, booking.ErrReservationNotFound
			}
			if requester.Username != "amy" {
				return booking.Confirmation{}, booking.ErrUnauthorized
			}
			return booking.Confirmation{Message: "Reservation canceled"}, nil
		},
		listProvidersFn: func(ctx context.Context, page, size int) ([]domain.Provider, error) {
			return []domain.Provider{{ID: uuid.New(), Username: "dr.seven", Name: "Seven"}}, nil
		},
		listAvailabilityFn: func(ctx context.Context, page, size int) ([]domain.AvailabilityInterval, error) {
			return []domain.AvailabilityInterval{{
				ID:        uuid.New(),
				Date:      time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
				StartTime: domain.NewClock(9, 0, 0),
				EndTime:   domain.NewClock(11, 0, 0),
				Status:    domain.IntervalAvailable,
			}}, nil
		},
	}, auth.DefaultHeaders, discardLogger()))
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })
	client := NewBookingClient(cc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	list, err := client.ListAvailability(ctx, &ListAvailabilityRequest{Page: 0, Size: 5})
	if err != nil {
		t.Fatalf("ListAvailability error: %v", err)
	}
	if len(list.Intervals) != 1 || list.Intervals[0].StartTime != "09:00" || list.Intervals[0].EndTime != "11:00" {
		t.Fatalf("intervals = %+v", list.Intervals)
	}

	providers, err := client.ListProviders(ctx, &ListProvidersRequest{})
	if err != nil {
		t.Fatalf("ListProviders error: %v", err)
	}
	if len(providers.Providers) != 1 || providers.Providers[0].Username != "dr.seven" {
		t.Fatalf("providers = %+v", providers.Providers)
	}

	_, err = client.Cancel(metadata.AppendToOutgoingContext(ctx, "x-user", "rory"), &CancelRequest{
		ReservationID: reservationID.String(),
		SubjectID:     subjectID.String(),
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("Cancel as stranger code = %v, want %v", status.Code(err), codes.PermissionDenied)
	}

	resp, err := client.Cancel(metadata.AppendToOutgoingContext(ctx, "x-user", "amy"), &CancelRequest{
		ReservationID: reservationID.String(),
		SubjectID:     subjectID.String(),
	})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if resp.Message != "Reservation canceled" {
		t.Fatalf("message = %q", resp.Message)
	}
}
