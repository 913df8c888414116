package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `
	id, transaction_reference, user_id, course_id,
	amount, currency, payment_method, status,
	checkout_url, receipt_url, gateway_response, verified_at,
	created_at, updated_at
`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			transaction_reference, user_id, course_id,
			amount, currency, payment_method, status,
			checkout_url, receipt_url, gateway_response, verified_at,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.TransactionReference,
		payment.UserID,
		payment.CourseID,
		payment.Amount,
		payment.Currency,
		payment.PaymentMethod,
		payment.Status,
		nullableStringValue(payment.CheckoutURL),
		nullableStringValue(payment.ReceiptURL),
		nullableStringValue(payment.GatewayResponse),
		nullableTimeValue(payment.VerifiedAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// TransitionStatus moves a pending payment to a new status. It reports false
// when the payment is unknown or has already left pending.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, txRef, status string, gatewayResponse *string, at time.Time) (bool, error) {
	query := `
		UPDATE payments SET
			status = ?,
			gateway_response = COALESCE(?, gateway_response),
			verified_at = ?,
			updated_at = ?
		WHERE transaction_reference = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		status,
		nullableStringValue(gatewayResponse),
		at,
		at,
		txRef,
		entity.PaymentStatusPending,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentRepository) FindByTransactionReference(ctx context.Context, txRef string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_reference = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, txRef), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) ListPendingForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ?
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, entity.PaymentStatusPending, before, limit)
}

func (r *PaymentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ?
		  AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	return r.list(ctx, query, entity.PaymentStatusPending, cutoff, limit)
}

func (r *PaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPaymentFromRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var checkoutURL sql.NullString
	var receiptURL sql.NullString
	var gatewayResponse sql.NullString
	var verifiedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.TransactionReference,
		&payment.UserID,
		&payment.CourseID,
		&payment.Amount,
		&payment.Currency,
		&payment.PaymentMethod,
		&payment.Status,
		&checkoutURL,
		&receiptURL,
		&gatewayResponse,
		&verifiedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.CheckoutURL = stringPtrFromNull(checkoutURL)
	payment.ReceiptURL = stringPtrFromNull(receiptURL)
	payment.GatewayResponse = stringPtrFromNull(gatewayResponse)
	payment.VerifiedAt = timePtrFromNull(verifiedAt)

	return nil
}

func scanPaymentFromRows(rows *sql.Rows) (*entity.Payment, error) {
	item := &entity.Payment{}
	if err := scanPayment(rows, item); err != nil {
		return nil, err
	}
	return item, nil
}
