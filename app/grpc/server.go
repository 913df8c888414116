package grpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vibast-solutions/ms-go-course-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-course-payments/app/service"
	"github.com/vibast-solutions/ms-go-course-payments/app/types"
)

const ServiceName = "enrollment.EnrollmentService"

// EnrollmentServiceServer is the gRPC view of the payment orchestrator.
// Messages are google.protobuf.Struct values with the HTTP JSON fields.
type EnrollmentServiceServer interface {
	InitializePayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	VerifyPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckEnrollmentStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPayment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var EnrollmentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EnrollmentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "InitializePayment", Handler: unaryHandler("InitializePayment", EnrollmentServiceServer.InitializePayment)},
		{MethodName: "VerifyPayment", Handler: unaryHandler("VerifyPayment", EnrollmentServiceServer.VerifyPayment)},
		{MethodName: "CheckEnrollmentStatus", Handler: unaryHandler("CheckEnrollmentStatus", EnrollmentServiceServer.CheckEnrollmentStatus)},
		{MethodName: "GetPayment", Handler: unaryHandler("GetPayment", EnrollmentServiceServer.GetPayment)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "enrollment/enrollment.proto",
}

func RegisterEnrollmentServiceServer(registrar grpc.ServiceRegistrar, srv EnrollmentServiceServer) {
	registrar.RegisterService(&EnrollmentServiceDesc, srv)
}

func unaryHandler(method string, call func(EnrollmentServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(EnrollmentServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type Server struct {
	paymentService *service.PaymentService
}

var _ EnrollmentServiceServer = (*Server)(nil)

func NewServer(paymentService *service.PaymentService) *Server {
	return &Server{paymentService: paymentService}
}

func (s *Server) InitializePayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	l := loggerWithContext(ctx)
	req, err := types.InitializePaymentRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		l.WithError(err).Debug("Initialize payment validation failed")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.paymentService.InitializePayment(ctx, req)
	if err != nil {
		return nil, s.toStatus(ctx, err, "Initialize payment failed")
	}
	if result.AlreadyEnrolled {
		return nil, status.Error(codes.AlreadyExists, "User is already enrolled in this course")
	}

	return toResponse(mapper.InitializeResultToData(result))
}

func (s *Server) VerifyPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.VerifyPaymentRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.paymentService.VerifyPayment(ctx, req)
	if err != nil {
		return nil, s.toStatus(ctx, err, "Verify payment failed")
	}
	if !result.IsPaid() {
		return nil, status.Error(codes.FailedPrecondition, fmt.Sprintf("Payment not successful: %s", result.GatewayStatus))
	}

	return toResponse(mapper.VerifyResultToData(result))
}

func (s *Server) CheckEnrollmentStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.EnrollmentStatusRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.paymentService.CheckEnrollmentStatus(ctx, req)
	if err != nil {
		return nil, s.toStatus(ctx, err, "Check enrollment status failed")
	}

	return toResponse(mapper.EnrollmentStatusToData(result))
}

func (s *Server) GetPayment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := types.GetPaymentRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	item, err := s.paymentService.GetPayment(ctx, req.TxRef)
	if err != nil {
		return nil, s.toStatus(ctx, err, "Get payment failed")
	}

	return toResponse(mapper.PaymentToData(item))
}

func (s *Server) toStatus(ctx context.Context, err error, logMessage string) error {
	var paymentErr *service.PaymentError
	switch {
	case errors.As(err, &paymentErr):
		loggerWithContext(ctx).WithError(err).Warn(logMessage)
		if paymentErr.Kind == service.PaymentErrorGatewayTimeout {
			return status.Error(codes.DeadlineExceeded, paymentErr.Message)
		}
		if paymentErr.Retryable {
			return status.Error(codes.Unavailable, paymentErr.Message)
		}
		return status.Error(codes.FailedPrecondition, paymentErr.Message)
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		loggerWithContext(ctx).WithError(err).Error(logMessage)
		return status.Error(codes.Internal, "internal server error")
	}
}

func toResponse(data interface{}) (*structpb.Struct, error) {
	out, err := types.ToStruct(data)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return out, nil
}
