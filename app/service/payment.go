package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
	"github.com/vibast-solutions/ms-go-course-payments/app/metrics"
	"github.com/vibast-solutions/ms-go-course-payments/app/provider"
	"github.com/vibast-solutions/ms-go-course-payments/app/repository"
	"github.com/vibast-solutions/ms-go-course-payments/config"
)

const defaultBatchSize = int32(100)

// AmountTolerance is the largest difference between two amounts that are
// still considered equal.
var AmountTolerance = decimal.New(1, -4)

var validate = validator.New()

type initializePaymentRequest interface {
	GetCourseID() uint64
	GetUserID() uint64
	GetAmount() decimal.Decimal
}

type enrollmentStatusRequest interface {
	GetCourseID() uint64
	GetUserID() uint64
}

type courseRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Course, error)
}

type userRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
}

type enrollmentRepository interface {
	IsUserEnrolled(ctx context.Context, courseID, userID uint64) (bool, error)
	FindByCourseAndUser(ctx context.Context, courseID, userID uint64) (*entity.Enrollment, error)
	UpdateEnrollment(ctx context.Context, courseID, userID uint64, status string, reference *string, at time.Time) (bool, error)
}

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	TransitionStatus(ctx context.Context, txRef, status string, gatewayResponse *string, at time.Time) (bool, error)
	FindByTransactionReference(ctx context.Context, txRef string) (*entity.Payment, error)
	ListPendingForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type paymentCallbackRepository interface {
	Create(ctx context.Context, callback *entity.PaymentCallback) error
}

type InitializeResult struct {
	AlreadyEnrolled bool
	PaymentURL      string
	TxRef           string
	Status          string
	CourseID        uint64
	UserID          uint64
	Amount          decimal.Decimal
}

type EnrollmentStatus struct {
	CourseID      uint64
	UserID        uint64
	CourseTitle   string
	IsEnrolled    bool
	PaymentStatus string
	PaymentDate   *time.Time
	TxRef         *string
}

type PaymentService struct {
	courseRepo     courseRepository
	userRepo       userRepository
	enrollmentRepo enrollmentRepository
	paymentRepo    paymentRepository
	eventRepo      paymentEventRepository
	callbackRepo   paymentCallbackRepository
	gateways       *provider.Registry
	paymentsCfg    config.PaymentsConfig
	metrics        *metrics.Collector
	now            func() time.Time
}

func NewPaymentService(
	courseRepo courseRepository,
	userRepo userRepository,
	enrollmentRepo enrollmentRepository,
	paymentRepo paymentRepository,
	eventRepo paymentEventRepository,
	callbackRepo paymentCallbackRepository,
	gateways *provider.Registry,
	paymentsCfg config.PaymentsConfig,
	collector *metrics.Collector,
) *PaymentService {
	return &PaymentService{
		courseRepo:     courseRepo,
		userRepo:       userRepo,
		enrollmentRepo: enrollmentRepo,
		paymentRepo:    paymentRepo,
		eventRepo:      eventRepo,
		callbackRepo:   callbackRepo,
		gateways:       gateways,
		paymentsCfg:    paymentsCfg,
		metrics:        collector,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// InitializePayment starts a hosted checkout for a course. The ledger is
// consulted before any gateway call; an enrolled user gets AlreadyEnrolled
// and nothing else happens.
func (s *PaymentService) InitializePayment(ctx context.Context, req initializePaymentRequest) (*InitializeResult, error) {
	courseID := req.GetCourseID()
	userID := req.GetUserID()
	amount := req.GetAmount()
	if courseID == 0 || userID == 0 || !amount.IsPositive() {
		return nil, ErrInvalidRequest
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if validate.Var(user.Email, "required,email") != nil {
		return nil, ErrInvalidEmail
	}

	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	if !course.IsPublished {
		return nil, ErrCourseNotPublished
	}
	if !amountsMatch(course.Price, amount) {
		return nil, ErrAmountMismatch
	}

	enrolled, err := s.enrollmentRepo.IsUserEnrolled(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return &InitializeResult{
			AlreadyEnrolled: true,
			CourseID:        courseID,
			UserID:          userID,
			Amount:          amount,
		}, nil
	}

	gateway, err := s.gateway(s.paymentsCfg.DefaultGateway)
	if err != nil {
		return nil, err
	}

	now := s.now()
	txRef := NewTxRef(courseID, userID, now)
	currency := strings.ToUpper(strings.TrimSpace(course.Currency))
	if currency == "" {
		currency = s.paymentsCfg.Currency
	}

	output, err := s.initializeWithGateway(ctx, gateway, &provider.InitializeInput{
		TxRef:       txRef,
		Amount:      amount,
		Currency:    currency,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		CourseTitle: course.Title,
		Meta: provider.Meta{
			UserID:    fmt.Sprintf("%d", userID),
			CourseID:  fmt.Sprintf("%d", courseID),
			UserEmail: user.Email,
		},
	})
	if err != nil {
		return nil, err
	}
	if output.CheckoutURL == "" {
		return nil, &PaymentError{
			Kind:                 PaymentErrorGatewayRejected,
			Gateway:              gateway.Name(),
			TransactionReference: txRef,
			Message:              "payment gateway did not return a checkout url",
			Details:              output.RawResponse,
		}
	}

	checkoutURL := output.CheckoutURL
	receiptURL := receiptURLFor(txRef)
	payment := &entity.Payment{
		TransactionReference: txRef,
		UserID:               userID,
		CourseID:             courseID,
		Amount:               amount,
		Currency:             currency,
		PaymentMethod:        gateway.Name(),
		Status:               entity.PaymentStatusPending,
		CheckoutURL:          &checkoutURL,
		ReceiptURL:           &receiptURL,
		GatewayResponse:      jsonOrNil(output.RawResponse),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			return nil, ErrDuplicateTransaction
		}
		return nil, err
	}

	s.recordEvent(ctx, payment.ID, "payment_initialized", nil, payment.Status, output.RawResponse, now)

	return &InitializeResult{
		PaymentURL: checkoutURL,
		TxRef:      txRef,
		Status:     entity.PaymentStatusPending,
		CourseID:   courseID,
		UserID:     userID,
		Amount:     amount,
	}, nil
}

// CheckEnrollmentStatus reports the ledger entry for a (course, user) pair,
// or the unpaid defaults when there is none.
func (s *PaymentService) CheckEnrollmentStatus(ctx context.Context, req enrollmentStatusRequest) (*EnrollmentStatus, error) {
	courseID := req.GetCourseID()
	userID := req.GetUserID()
	if courseID == 0 || userID == 0 {
		return nil, ErrInvalidRequest
	}

	course, err := s.courseRepo.FindByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	status := &EnrollmentStatus{
		CourseID:      courseID,
		UserID:        userID,
		CourseTitle:   course.Title,
		PaymentStatus: entity.EnrollmentStatusUnpaid,
	}

	enrollment, err := s.enrollmentRepo.FindByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return status, nil
	}

	status.IsEnrolled = enrollment.IsPaid()
	if enrollment.PaymentStatus != "" {
		status.PaymentStatus = enrollment.PaymentStatus
	}
	status.PaymentDate = enrollment.PaymentDate
	status.TxRef = enrollment.PaymentReference
	return status, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, txRef string) (*entity.Payment, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrMissingTxRef
	}

	payment, err := s.paymentRepo.FindByTransactionReference(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// NewTxRef builds the transaction reference for one payment attempt.
func NewTxRef(courseID, userID uint64, at time.Time) string {
	return fmt.Sprintf("course-%d-%d-%d", courseID, at.UnixMilli(), userID)
}

func (s *PaymentService) gateway(name string) (provider.Gateway, error) {
	if strings.TrimSpace(name) == "" {
		name = provider.GatewayChapa
	}
	gateway, err := s.gateways.Get(name)
	if err != nil {
		if errors.Is(err, provider.ErrGatewayNotSupported) {
			return nil, ErrGatewayUnsupported
		}
		return nil, err
	}
	return gateway, nil
}

func (s *PaymentService) recordEvent(ctx context.Context, paymentID uint64, eventType string, oldStatus *string, newStatus string, payload []byte, at time.Time) {
	if paymentID == 0 {
		return
	}
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		PaymentID:   paymentID,
		EventType:   eventType,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		PayloadJSON: jsonOrNil(payload),
		CreatedAt:   at,
	})
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func amountsMatch(expected, actual decimal.Decimal) bool {
	return expected.Sub(actual).Abs().LessThan(AmountTolerance)
}

func receiptURLFor(txRef string) string {
	return "/payment-receipts/" + txRef + ".pdf"
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
