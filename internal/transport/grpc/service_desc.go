package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const BookingServiceName = "clinicslots.v1.BookingService"

type Reservation struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	SubjectID  string `json:"subject_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

type AvailabilityInterval struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
}

type BookRequest struct {
	ProviderID string `json:"provider_id"`
	SubjectID  string `json:"subject_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type BookResponse struct {
	Reservation *Reservation `json:"reservation"`
}

type RescheduleRequest struct {
	ReservationID string `json:"reservation_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
}

type RescheduleResponse struct {
	Reservation *Reservation `json:"reservation"`
}

type CancelRequest struct {
	ReservationID string `json:"reservation_id"`
	SubjectID     string `json:"subject_id"`
}

type CancelResponse struct {
	Message string `json:"message"`
}

type AddAvailabilityRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type UpdateAvailabilityRequest struct {
	IntervalID string  `json:"interval_id"`
	Date       *string `json:"date,omitempty"`
	StartTime  *string `json:"start_time,omitempty"`
	EndTime    *string `json:"end_time,omitempty"`
}

type AvailabilityResponse struct {
	Interval *AvailabilityInterval `json:"interval"`
}

type DeleteAvailabilityRequest struct {
	IntervalID string `json:"interval_id"`
}

type DeleteAvailabilityResponse struct {
	Message string `json:"message"`
}

type ListReservationsRequest struct {
	ProviderID string `json:"provider_id,omitempty"`
	SubjectID  string `json:"subject_id,omitempty"`
	Page       int32  `json:"page"`
	Size       int32  `json:"size"`
}

type ListReservationsResponse struct {
	Reservations []*Reservation `json:"reservations"`
}

type ListAvailabilityRequest struct {
	Page int32 `json:"page"`
	Size int32 `json:"size"`
}

type ListAvailabilityResponse struct {
	Intervals []*AvailabilityInterval `json:"intervals"`
}

type Provider struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
}

type Subject struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type RegisterProviderRequest struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type RegisterProviderResponse struct {
	Provider *Provider `json:"provider"`
}

type ListProvidersRequest struct {
	Page int32 `json:"page"`
	Size int32 `json:"size"`
}

type ListProvidersResponse struct {
	Providers []*Provider `json:"providers"`
}

type RegisterSubjectRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
}

type RegisterSubjectResponse struct {
	Subject *Subject `json:"subject"`
}

type ListSubjectsRequest struct {
	Page int32 `json:"page"`
	Size int32 `json:"size"`
}

type ListSubjectsResponse struct {
	Subjects []*Subject `json:"subjects"`
}

type BookingServiceServer interface {
	Book(context.Context, *BookRequest) (*BookResponse, error)
	Reschedule(context.Context, *RescheduleRequest) (*RescheduleResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
	AddAvailability(context.Context, *AddAvailabilityRequest) (*AvailabilityResponse, error)
	UpdateAvailability(context.Context, *UpdateAvailabilityRequest) (*AvailabilityResponse, error)
	DeleteAvailability(context.Context, *DeleteAvailabilityRequest) (*DeleteAvailabilityResponse, error)
	ListReservations(context.Context, *ListReservationsRequest) (*ListReservationsResponse, error)
	ListAvailability(context.Context, *ListAvailabilityRequest) (*ListAvailabilityResponse, error)
	RegisterProvider(context.Context, *RegisterProviderRequest) (*RegisterProviderResponse, error)
	ListProviders(context.Context, *ListProvidersRequest) (*ListProvidersResponse, error)
	RegisterSubject(context.Context, *RegisterSubjectRequest) (*RegisterSubjectResponse, error)
	ListSubjects(context.Context, *ListSubjectsRequest) (*ListSubjectsResponse, error)
}

var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Book", BookingServiceServer.Book),
		unaryMethod("Reschedule", BookingServiceServer.Reschedule),
		unaryMethod("Cancel", BookingServiceServer.Cancel),
		unaryMethod("AddAvailability", BookingServiceServer.AddAvailability),
		unaryMethod("UpdateAvailability", BookingServiceServer.UpdateAvailability),
		unaryMethod("DeleteAvailability", BookingServiceServer.DeleteAvailability),
		unaryMethod("ListReservations", BookingServiceServer.ListReservations),
		unaryMethod("ListAvailability", BookingServiceServer.ListAvailability),
		unaryMethod("RegisterProvider", BookingServiceServer.RegisterProvider),
		unaryMethod("ListProviders", BookingServiceServer.ListProviders),
		unaryMethod("RegisterSubject", BookingServiceServer.RegisterSubject),
		unaryMethod("ListSubjects", BookingServiceServer.ListSubjects),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clinicslots/v1/booking",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

func unaryMethod[Req, Resp any](name string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + BookingServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BookingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BookingServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// BookingClient calls BookingService over the JSON codec.
type BookingClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingClient(cc grpc.ClientConnInterface) *BookingClient {
	return &BookingClient{cc: cc}
}

func (c *BookingClient) Book(ctx context.Context, in *BookRequest, opts ...grpc.CallOption) (*BookResponse, error) {
	out := new(BookResponse)
	if err := c.invoke(ctx, "Book", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) Reschedule(ctx context.Context, in *RescheduleRequest, opts ...grpc.CallOption) (*RescheduleResponse, error) {
	out := new(RescheduleResponse)
	if err := c.invoke(ctx, "Reschedule", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) Cancel(ctx context.Context, in *CancelRequest, opts ...grpc.CallOption) (*CancelResponse, error) {
	out := new(CancelResponse)
	if err := c.invoke(ctx, "Cancel", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) AddAvailability(ctx context.Context, in *AddAvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	out := new(AvailabilityResponse)
	if err := c.invoke(ctx, "AddAvailability", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) UpdateAvailability(ctx context.Context, in *UpdateAvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	out := new(AvailabilityResponse)
	if err := c.invoke(ctx, "UpdateAvailability", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) DeleteAvailability(ctx context.Context, in *DeleteAvailabilityRequest, opts ...grpc.CallOption) (*DeleteAvailabilityResponse, error) {
	out := new(DeleteAvailabilityResponse)
	if err := c.invoke(ctx, "DeleteAvailability", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) ListReservations(ctx context.Context, in *ListReservationsRequest, opts ...grpc.CallOption) (*ListReservationsResponse, error) {
	out := new(ListReservationsResponse)
	if err := c.invoke(ctx, "ListReservations", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) ListAvailability(ctx context.Context, in *ListAvailabilityRequest, opts ...grpc.CallOption) (*ListAvailabilityResponse, error) {
	out := new(ListAvailabilityResponse)
	if err := c.invoke(ctx, "ListAvailability", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) RegisterProvider(ctx context.Context, in *RegisterProviderRequest, opts ...grpc.CallOption) (*RegisterProviderResponse, error) {
	out := new(RegisterProviderResponse)
	if err := c.invoke(ctx, "RegisterProvider", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) ListProviders(ctx context.Context, in *ListProvidersRequest, opts ...grpc.CallOption) (*ListProvidersResponse, error) {
	out := new(ListProvidersResponse)
	if err := c.invoke(ctx, "ListProviders", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) RegisterSubject(ctx context.Context, in *RegisterSubjectRequest, opts ...grpc.CallOption) (*RegisterSubjectResponse, error) {
	out := new(RegisterSubjectResponse)
	if err := c.invoke(ctx, "RegisterSubject", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) ListSubjects(ctx context.Context, in *ListSubjectsRequest, opts ...grpc.CallOption) (*ListSubjectsResponse, error) {
	out := new(ListSubjectsResponse)
	if err := c.invoke(ctx, "ListSubjects", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+BookingServiceName+"/"+method, in, out, opts...)
}
