package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-course-payments/app/entity"
	"github.com/vibast-solutions/ms-go-course-payments/app/service"
	"github.com/vibast-solutions/ms-go-course-payments/app/types"
)

func PaymentToData(item *entity.Payment) *types.PaymentData {
	if item == nil {
		return nil
	}

	return &types.PaymentData{
		TxRef:         item.TransactionReference,
		CourseID:      item.CourseID,
		UserID:        item.UserID,
		Amount:        item.Amount,
		Currency:      item.Currency,
		PaymentMethod: item.PaymentMethod,
		Status:        item.Status,
		CheckoutURL:   derefString(item.CheckoutURL),
		ReceiptURL:    derefString(item.ReceiptURL),
		VerifiedAt:    utcTime(item.VerifiedAt),
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
	}
}

func InitializeResultToData(result *service.InitializeResult) *types.InitializePaymentData {
	if result == nil {
		return nil
	}

	return &types.InitializePaymentData{
		PaymentURL: result.PaymentURL,
		TxRef:      result.TxRef,
		Status:     result.Status,
		CourseID:   result.CourseID,
		UserID:     result.UserID,
		Amount:     result.Amount,
	}
}

func VerifyResultToData(result *service.VerifyResult) *types.VerifyPaymentData {
	if result == nil {
		return nil
	}

	return &types.VerifyPaymentData{
		Status:          entity.EnrollmentStatusPaid,
		CourseID:        result.CourseID,
		UserID:          result.UserID,
		Amount:          result.Amount,
		PaymentDate:     utcTime(result.PaymentDate),
		TxRef:           result.TxRef,
		AlreadyEnrolled: result.Outcome == service.VerifyOutcomeAlreadyEnrolled,
	}
}

func EnrollmentStatusToData(status *service.EnrollmentStatus) *types.EnrollmentStatusData {
	if status == nil {
		return nil
	}

	return &types.EnrollmentStatusData{
		CourseID:      status.CourseID,
		UserID:        status.UserID,
		CourseTitle:   status.CourseTitle,
		IsEnrolled:    status.IsEnrolled,
		PaymentStatus: status.PaymentStatus,
		PaymentDate:   utcTime(status.PaymentDate),
		TxRef:         status.TxRef,
	}
}

func WebhookResultToData(result *service.VerifyResult) *types.WebhookData {
	if result == nil {
		return nil
	}

	paymentStatus := result.GatewayStatus
	if result.IsPaid() {
		paymentStatus = entity.EnrollmentStatusPaid
	}
	return &types.WebhookData{
		TxRef:         result.TxRef,
		PaymentStatus: paymentStatus,
		Enrolled:      result.IsPaid(),
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func utcTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := v.UTC()
	return &t
}
