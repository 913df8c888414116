package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-course-payments/app/factory"
	"github.com/vibast-solutions/ms-go-course-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-course-payments/app/service"
	"github.com/vibast-solutions/ms-go-course-payments/app/types"
)

const (
	errorTypeValidation  = "validation"
	errorTypeOperational = "operational"
	errorTypePayment     = "payment"
	errorTypeInternal    = "internal"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
	now            func() time.Time
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("course-payments-controller"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) InitializePayment(ctx echo.Context) error {
	req, err := types.NewInitializePaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.InitializePayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Initialize payment failed")
	}
	if result.AlreadyEnrolled {
		return ctx.JSON(http.StatusBadRequest, &types.FailResponse{
			Status:  types.StatusFail,
			Message: "User is already enrolled in this course",
		})
	}

	return ctx.JSON(http.StatusOK, &types.SuccessResponse{
		Status: types.StatusSuccess,
		Data:   mapper.InitializeResultToData(result),
	})
}

func (c *PaymentController) VerifyPayment(ctx echo.Context) error {
	req, err := types.NewVerifyPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "Transaction reference (tx_ref) is required")
	}

	result, err := c.paymentService.VerifyPayment(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Verify payment failed")
	}
	if !result.IsPaid() {
		return ctx.JSON(http.StatusBadRequest, &types.FailResponse{
			Status:        types.StatusFail,
			Message:       "Payment not successful",
			PaymentStatus: result.GatewayStatus,
		})
	}

	response := &types.SuccessResponse{
		Status: types.StatusSuccess,
		Data:   mapper.VerifyResultToData(result),
	}
	if result.Outcome == service.VerifyOutcomeAlreadyEnrolled {
		response.Message = "User is already enrolled"
	}
	return ctx.JSON(http.StatusOK, response)
}

func (c *PaymentController) CheckEnrollmentStatus(ctx echo.Context) error {
	req, err := types.NewEnrollmentStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	status, err := c.paymentService.CheckEnrollmentStatus(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Check enrollment status failed")
	}

	return ctx.JSON(http.StatusOK, &types.SuccessResponse{
		Status: types.StatusSuccess,
		Data:   mapper.EnrollmentStatusToData(status),
	})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPayment(ctx.Request().Context(), req.TxRef)
	if err != nil {
		return c.writeServiceError(ctx, err, "Get payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.SuccessResponse{
		Status: types.StatusSuccess,
		Data:   mapper.PaymentToData(item),
	})
}

// HandleGatewayWebhook acknowledges every notification the service could
// resolve, including unsuccessful payments, so the gateway stops retrying.
func (c *PaymentController) HandleGatewayWebhook(ctx echo.Context) error {
	req, err := types.NewGatewayWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.HandleGatewayWebhook(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Handle gateway webhook failed")
	}

	return ctx.JSON(http.StatusOK, &types.SuccessResponse{
		Status:  types.StatusSuccess,
		Message: "Webhook processed",
		Data:    mapper.WebhookResultToData(result),
	})
}

func (c *PaymentController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	var paymentErr *service.PaymentError
	switch {
	case errors.As(err, &paymentErr):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).WithFields(logrus.Fields{
			"gateway":   paymentErr.Gateway,
			"tx_ref":    paymentErr.TransactionReference,
			"retryable": paymentErr.Retryable,
		}).Warn(logMessage)
		return c.writePaymentError(ctx, paymentErr)
	case errors.Is(err, service.ErrNotFound):
		return c.writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *PaymentController) writePaymentError(ctx echo.Context, paymentErr *service.PaymentError) error {
	statusCode := paymentErr.HTTPStatus()
	retryable := paymentErr.Retryable
	response := &types.ErrorResponse{
		Status:               statusFor(statusCode),
		Message:              paymentErr.Message,
		StatusCode:           statusCode,
		ErrorType:            errorTypePayment,
		Timestamp:            c.now().Format(time.RFC3339),
		PaymentError:         true,
		Retryable:            &retryable,
		PaymentGateway:       paymentErr.Gateway,
		TransactionReference: paymentErr.TransactionReference,
	}
	if len(paymentErr.Details) > 0 && json.Valid(paymentErr.Details) {
		response.Details = json.RawMessage(paymentErr.Details)
	}
	if retryable && paymentErr.TransactionReference != "" {
		response.RetryURL = "/payments/verify?tx_ref=" + url.QueryEscape(paymentErr.TransactionReference)
	}
	return ctx.JSON(statusCode, response)
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{
		Status:     statusFor(statusCode),
		Message:    message,
		StatusCode: statusCode,
		ErrorType:  errorTypeFor(statusCode),
		Timestamp:  c.now().Format(time.RFC3339),
	})
}

func statusFor(statusCode int) string {
	if statusCode >= 400 && statusCode < 500 {
		return types.StatusFail
	}
	return types.StatusError
}

func errorTypeFor(statusCode int) string {
	switch {
	case statusCode == http.StatusBadRequest:
		return errorTypeValidation
	case statusCode >= 500:
		return errorTypeInternal
	default:
		return errorTypeOperational
	}
}
