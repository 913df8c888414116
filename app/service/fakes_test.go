package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
	"github.com/vibast-solutions/ms-go-course-payments/app/provider"
	"github.com/vibast-solutions/ms-go-course-payments/app/repository"
	"github.com/vibast-solutions/ms-go-course-payments/config"
)

type serviceCourseRepo struct {
	courses map[uint64]*entity.Course
}

func (r *serviceCourseRepo) FindByID(_ context.Context, id uint64) (*entity.Course, error) {
	item, ok := r.courses[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type serviceUserRepo struct {
	users map[uint64]*entity.User
}

func (r *serviceUserRepo) FindByID(_ context.Context, id uint64) (*entity.User, error) {
	item, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

type enrollmentKey struct {
	courseID uint64
	userID   uint64
}

// serviceEnrollmentRepo applies the same guards as the MySQL upsert under a
// single lock.
type serviceEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments map[enrollmentKey]*entity.Enrollment
	nextID      uint64
	updates     int
}

func newServiceEnrollmentRepo() *serviceEnrollmentRepo {
	return &serviceEnrollmentRepo{enrollments: map[enrollmentKey]*entity.Enrollment{}, nextID: 1}
}

func (r *serviceEnrollmentRepo) IsUserEnrolled(_ context.Context, courseID, userID uint64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enrollments[enrollmentKey{courseID, userID}].IsPaid(), nil
}

func (r *serviceEnrollmentRepo) FindByCourseAndUser(_ context.Context, courseID, userID uint64) (*entity.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.enrollments[enrollmentKey{courseID, userID}]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *serviceEnrollmentRepo) UpdateEnrollment(_ context.Context, courseID, userID uint64, status string, reference *string, at time.Time) (bool, error) {
	if !entity.IsValidEnrollmentStatus(status) {
		return false, repository.ErrInvalidEnrollmentStatus
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++

	key := enrollmentKey{courseID, userID}
	item, ok := r.enrollments[key]
	if !ok {
		item = &entity.Enrollment{ID: r.nextID, CourseID: courseID, UserID: userID, PaymentStatus: status, PaymentReference: reference, CreatedAt: at, UpdatedAt: at}
		if status == entity.EnrollmentStatusPaid {
			date := at
			item.PaymentDate = &date
		}
		r.nextID++
		r.enrollments[key] = item
		return true, nil
	}

	if item.PaymentStatus == status || (item.PaymentStatus == entity.EnrollmentStatusPaid && status == entity.EnrollmentStatusUnpaid) {
		return false, nil
	}
	if item.PaymentDate == nil && status == entity.EnrollmentStatusPaid {
		date := at
		item.PaymentDate = &date
	}
	if reference != nil {
		item.PaymentReference = reference
	}
	item.PaymentStatus = status
	item.UpdatedAt = at
	return true, nil
}

func (r *serviceEnrollmentRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.enrollments)
}

type servicePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*entity.Payment
	nextID   uint64
}

func newServicePaymentRepo() *servicePaymentRepo {
	return &servicePaymentRepo{payments: map[string]*entity.Payment{}, nextID: 1}
}

func (r *servicePaymentRepo) Create(_ context.Context, payment *entity.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[payment.TransactionReference]; ok {
		return repository.ErrPaymentAlreadyExists
	}
	payment.ID = r.nextID
	r.nextID++
	copyItem := *payment
	r.payments[payment.TransactionReference] = &copyItem
	return nil
}

func (r *servicePaymentRepo) TransitionStatus(_ context.Context, txRef, status string, gatewayResponse *string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.payments[txRef]
	if !ok || item.Status != entity.PaymentStatusPending {
		return false, nil
	}
	item.Status = status
	if gatewayResponse != nil {
		item.GatewayResponse = gatewayResponse
	}
	item.VerifiedAt = &at
	item.UpdatedAt = at
	return true, nil
}

func (r *servicePaymentRepo) FindByTransactionReference(_ context.Context, txRef string) (*entity.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.payments[txRef]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *servicePaymentRepo) ListPendingForReconcile(_ context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	return r.listPending(func(p *entity.Payment) bool { return !p.UpdatedAt.After(before) }, limit), nil
}

func (r *servicePaymentRepo) ListExpiredPending(_ context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	return r.listPending(func(p *entity.Payment) bool { return !p.CreatedAt.After(cutoff) }, limit), nil
}

func (r *servicePaymentRepo) listPending(match func(*entity.Payment) bool, limit int32) []*entity.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Payment, 0)
	for _, item := range r.payments {
		if item.Status == entity.PaymentStatusPending && match(item) {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	if limit > 0 && int(limit) < len(items) {
		return items[:limit]
	}
	return items
}

func (r *servicePaymentRepo) status(txRef string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item, ok := r.payments[txRef]; ok {
		return item.Status
	}
	return ""
}

type serviceEventRepo struct {
	mu     sync.Mutex
	events []*entity.PaymentEvent
}

func (r *serviceEventRepo) Create(_ context.Context, event *entity.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

type serviceCallbackRepo struct {
	mu        sync.Mutex
	callbacks []*entity.PaymentCallback
}

func (r *serviceCallbackRepo) Create(_ context.Context, callback *entity.PaymentCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *callback
	r.callbacks = append(r.callbacks, &copyItem)
	return nil
}

type serviceGateway struct {
	mu           sync.Mutex
	initOutput   *provider.InitializeOutput
	initErr      error
	lastInit     *provider.InitializeInput
	tx           *provider.Transaction
	verifyErr    error
	signatureErr error
	initCalls    int
	verifyCalls  int
}

func (g *serviceGateway) Name() string {
	return provider.GatewayChapa
}

func (g *serviceGateway) Initialize(_ context.Context, input *provider.InitializeInput) (*provider.InitializeOutput, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	g.lastInit = input
	if g.initErr != nil {
		return nil, g.initErr
	}
	if g.initOutput != nil {
		return g.initOutput, nil
	}
	return &provider.InitializeOutput{
		CheckoutURL: "https://checkout.chapa.co/checkout/payment/abc",
		RawResponse: []byte(`{"status":"success","data":{"checkout_url":"https://checkout.chapa.co/checkout/payment/abc"}}`),
	}, nil
}

func (g *serviceGateway) Verify(_ context.Context, txRef string) (*provider.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	tx := *g.tx
	tx.TxRef = txRef
	return &tx, nil
}

func (g *serviceGateway) VerifyWebhookSignature([]byte, string) error {
	return g.signatureErr
}

func (g *serviceGateway) calls() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initCalls, g.verifyCalls
}

func successfulTransaction(courseID, userID, amount string) *provider.Transaction {
	return &provider.Transaction{
		Status:   provider.TransactionStatusSuccess,
		Amount:   decimal.RequireFromString(amount),
		Currency: "ETB",
		Meta:     provider.Meta{UserID: userID, CourseID: courseID, UserEmail: "learner@example.com"},
		Raw:      []byte(`{"status":"success"}`),
	}
}

type serviceFixture struct {
	svc         *PaymentService
	courses     *serviceCourseRepo
	users       *serviceUserRepo
	enrollments *serviceEnrollmentRepo
	payments    *servicePaymentRepo
	events      *serviceEventRepo
	callbacks   *serviceCallbackRepo
	gateway     *serviceGateway
}

func newServiceFixture(gateway *serviceGateway) *serviceFixture {
	now := time.Now().UTC()
	f := &serviceFixture{
		courses: &serviceCourseRepo{courses: map[uint64]*entity.Course{
			7: {ID: 7, Title: "Go Basics", Price: decimal.RequireFromString("499.99"), Currency: "ETB", IsPublished: true, CreatedAt: now, UpdatedAt: now},
			8: {ID: 8, Title: "Draft Course", Price: decimal.RequireFromString("100"), Currency: "ETB", IsPublished: false, CreatedAt: now, UpdatedAt: now},
		}},
		users: &serviceUserRepo{users: map[uint64]*entity.User{
			3: {ID: 3, Email: "learner@example.com", FirstName: "Abebe", LastName: "Kebede", CreatedAt: now, UpdatedAt: now},
			4: {ID: 4, Email: "not-an-email", CreatedAt: now, UpdatedAt: now},
		}},
		enrollments: newServiceEnrollmentRepo(),
		payments:    newServicePaymentRepo(),
		events:      &serviceEventRepo{},
		callbacks:   &serviceCallbackRepo{},
		gateway:     gateway,
	}
	f.svc = NewPaymentService(
		f.courses,
		f.users,
		f.enrollments,
		f.payments,
		f.events,
		f.callbacks,
		provider.NewRegistry(gateway),
		config.PaymentsConfig{
			DefaultGateway:      provider.GatewayChapa,
			Currency:            "ETB",
			PendingTimeout:      time.Hour,
			ReconcileStaleAfter: time.Minute,
			JobBatchSize:        100,
		},
		nil,
	)
	return f
}

type initRequest struct {
	courseID uint64
	userID   uint64
	amount   decimal.Decimal
}

func (r initRequest) GetCourseID() uint64        { return r.courseID }
func (r initRequest) GetUserID() uint64          { return r.userID }
func (r initRequest) GetAmount() decimal.Decimal { return r.amount }

type txRefRequest string

func (r txRefRequest) GetTxRef() string { return string(r) }

type webhookRequest struct {
	gateway   string
	signature string
	payload   []byte
	txRef     string
	unsigned  bool
}

func (r webhookRequest) GetGateway() string      { return r.gateway }
func (r webhookRequest) GetSignature() string    { return r.signature }
func (r webhookRequest) GetPayload() []byte      { return r.payload }
func (r webhookRequest) GetTxRef() string        { return r.txRef }
func (r webhookRequest) RequiresSignature() bool { return !r.unsigned }
