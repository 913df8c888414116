package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const maxWebhookBodyBytes = 1 << 20

type InitializePaymentRequest struct {
	CourseID  uint64          `json:"courseId" validate:"required"`
	UserID    uint64          `json:"userId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	HasAmount bool            `json:"-"`
}

func (r *InitializePaymentRequest) GetCourseID() uint64        { return r.CourseID }
func (r *InitializePaymentRequest) GetUserID() uint64          { return r.UserID }
func (r *InitializePaymentRequest) GetAmount() decimal.Decimal { return r.Amount }

func NewInitializePaymentRequestFromContext(ctx echo.Context) (*InitializePaymentRequest, error) {
	courseID, err := parseID(ctx.Param("courseId"), "courseId")
	if err != nil {
		return nil, err
	}

	var body struct {
		Amount *decimal.Decimal `json:"amount"`
		UserID json.Number      `json:"userId"`
	}
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	req := &InitializePaymentRequest{CourseID: courseID}
	if body.Amount != nil {
		req.Amount = *body.Amount
		req.HasAmount = true
	}
	if raw := strings.TrimSpace(body.UserID.String()); raw != "" {
		if req.UserID, err = parseID(raw, "userId"); err != nil {
			return nil, err
		}
	}

	return req, nil
}

func (r *InitializePaymentRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if !r.HasAmount {
		return errors.New("amount is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be > 0")
	}
	return nil
}

type VerifyPaymentRequest struct {
	TxRef string `json:"tx_ref" validate:"required,max=191"`
}

func (r *VerifyPaymentRequest) GetTxRef() string { return r.TxRef }

// NewVerifyPaymentRequestFromContext accepts the reference as a JSON body, a
// raw buffer body forwarded by the gateway, or a query parameter.
func NewVerifyPaymentRequestFromContext(ctx echo.Context) (*VerifyPaymentRequest, error) {
	req := &VerifyPaymentRequest{}

	if ctx.Request().Method != http.MethodGet && ctx.Request().Body != nil {
		raw, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes))
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			fields, err := DecodeWebhookPayload(raw)
			if err != nil {
				return nil, err
			}
			req.TxRef = TxRefFromPayload(fields)
		}
	}

	if req.TxRef == "" {
		req.TxRef = txRefFromQuery(ctx)
	}
	return req, nil
}

func (r *VerifyPaymentRequest) Validate() error {
	r.TxRef = strings.TrimSpace(r.TxRef)
	return validateStruct(r)
}

type EnrollmentStatusRequest struct {
	CourseID uint64 `json:"courseId" validate:"required"`
	UserID   uint64 `json:"userId" validate:"required"`
}

func (r *EnrollmentStatusRequest) GetCourseID() uint64 { return r.CourseID }
func (r *EnrollmentStatusRequest) GetUserID() uint64   { return r.UserID }

func NewEnrollmentStatusRequestFromContext(ctx echo.Context) (*EnrollmentStatusRequest, error) {
	courseID, err := parseID(ctx.Param("courseId"), "courseId")
	if err != nil {
		return nil, err
	}

	req := &EnrollmentStatusRequest{CourseID: courseID}
	if raw := strings.TrimSpace(ctx.QueryParam("userId")); raw != "" {
		if req.UserID, err = parseID(raw, "userId"); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (r *EnrollmentStatusRequest) Validate() error {
	return validateStruct(r)
}

type GetPaymentRequest struct {
	TxRef string `json:"txRef" validate:"required,max=191"`
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	return &GetPaymentRequest{TxRef: strings.TrimSpace(ctx.Param("txRef"))}, nil
}

func (r *GetPaymentRequest) Validate() error {
	return validateStruct(r)
}

type GatewayWebhookRequest struct {
	Gateway   string `json:"gateway" validate:"required"`
	Signature string `json:"signature"`
	Payload   []byte `json:"-"`
	TxRef     string `json:"tx_ref" validate:"max=191"`
	Signed    bool   `json:"-"`
}

func (r *GatewayWebhookRequest) GetGateway() string      { return r.Gateway }
func (r *GatewayWebhookRequest) GetSignature() string    { return r.Signature }
func (r *GatewayWebhookRequest) GetPayload() []byte      { return r.Payload }
func (r *GatewayWebhookRequest) GetTxRef() string        { return r.TxRef }
func (r *GatewayWebhookRequest) RequiresSignature() bool { return r.Signed }

// NewGatewayWebhookRequestFromContext reads a gateway notification. POST
// bodies are signed webhooks; GET requests are the unsigned checkout
// callback carrying the reference in the query string.
func NewGatewayWebhookRequestFromContext(ctx echo.Context) (*GatewayWebhookRequest, error) {
	req := &GatewayWebhookRequest{
		Gateway: strings.ToLower(strings.TrimSpace(ctx.Param("gateway"))),
	}

	if ctx.Request().Method == http.MethodGet {
		req.TxRef = txRefFromQuery(ctx)
		req.Payload = []byte(ctx.QueryParams().Encode())
		return req, nil
	}

	req.Signed = true
	req.Signature = strings.TrimSpace(ctx.Request().Header.Get("Chapa-Signature"))
	if req.Signature == "" {
		req.Signature = strings.TrimSpace(ctx.Request().Header.Get("X-Chapa-Signature"))
	}

	raw, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxWebhookBodyBytes))
	if err != nil {
		return nil, err
	}
	req.Payload = raw

	if len(bytes.TrimSpace(raw)) > 0 {
		fields, err := DecodeWebhookPayload(raw)
		if err != nil {
			return nil, err
		}
		req.TxRef = TxRefFromPayload(fields)
	}
	if req.TxRef == "" {
		req.TxRef = txRefFromQuery(ctx)
	}
	return req, nil
}

func (r *GatewayWebhookRequest) Validate() error {
	return validateStruct(r)
}

// DecodeWebhookPayload turns a gateway body into JSON fields. Besides a plain
// JSON object it accepts a JSON string holding the object and a serialized
// byte buffer of the form {"type":"Buffer","data":[...]}.
func DecodeWebhookPayload(raw []byte) (map[string]interface{}, error) {
	raw = bytes.TrimSpace(raw)
	for depth := 0; depth < 3; depth++ {
		var value interface{}
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.UseNumber()
		if err := decoder.Decode(&value); err != nil {
			return nil, errors.New("webhook payload is not valid JSON")
		}

		switch typed := value.(type) {
		case map[string]interface{}:
			buffer, ok := bufferBytes(typed)
			if !ok {
				return typed, nil
			}
			raw = bytes.TrimSpace(buffer)
		case string:
			raw = bytes.TrimSpace([]byte(typed))
		default:
			return nil, errors.New("webhook payload must be a JSON object")
		}
	}
	return nil, errors.New("webhook payload is nested too deeply")
}

func TxRefFromPayload(fields map[string]interface{}) string {
	for _, key := range []string{"tx_ref", "trx_ref", "txRef"} {
		if value, ok := fields[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	if data, ok := fields["data"].(map[string]interface{}); ok {
		return TxRefFromPayload(data)
	}
	return ""
}

func bufferBytes(fields map[string]interface{}) ([]byte, bool) {
	if kind, _ := fields["type"].(string); kind != "Buffer" {
		return nil, false
	}
	items, ok := fields["data"].([]interface{})
	if !ok {
		return nil, false
	}

	out := make([]byte, 0, len(items))
	for _, item := range items {
		number, ok := item.(json.Number)
		if !ok {
			return nil, false
		}
		b, err := strconv.ParseUint(number.String(), 10, 8)
		if err != nil {
			return nil, false
		}
		out = append(out, byte(b))
	}
	return out, true
}

func txRefFromQuery(ctx echo.Context) string {
	for _, key := range []string{"tx_ref", "trx_ref"} {
		if value := strings.TrimSpace(ctx.QueryParam(key)); value != "" {
			return value
		}
	}
	return ""
}

func parseID(raw, field string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid " + field)
	}
	return id, nil
}
