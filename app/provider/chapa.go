package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	chapaDefaultBaseURL = "https://api.chapa.co"
	chapaDefaultTimeout = 10 * time.Second
	chapaMaxBodyBytes   = 1 << 20
)

type ChapaConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	CallbackURL   string
	ReturnURL     string
	HTTPTimeout   time.Duration
}

type ChapaGateway struct {
	cfg    ChapaConfig
	client *http.Client
}

func NewChapaGateway(cfg ChapaConfig) *ChapaGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = chapaDefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = chapaDefaultBaseURL
	}

	return &ChapaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *ChapaGateway) Name() string {
	return GatewayChapa
}

type chapaInitializeRequest struct {
	Amount        string             `json:"amount"`
	Currency      string             `json:"currency"`
	Email         string             `json:"email"`
	FirstName     string             `json:"first_name"`
	LastName      string             `json:"last_name"`
	TxRef         string             `json:"tx_ref"`
	CallbackURL   string             `json:"callback_url,omitempty"`
	ReturnURL     string             `json:"return_url,omitempty"`
	Customization chapaCustomization `json:"customization"`
	Meta          chapaMeta          `json:"meta"`
}

type chapaCustomization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type chapaMeta struct {
	UserID    string `json:"userId"`
	CourseID  string `json:"courseId"`
	UserEmail string `json:"userEmail"`
}

func (g *ChapaGateway) Initialize(ctx context.Context, input *InitializeInput) (*InitializeOutput, error) {
	if strings.TrimSpace(g.cfg.SecretKey) == "" {
		return nil, ErrSecretKeyNotConfigured
	}
	if strings.TrimSpace(input.TxRef) == "" {
		return nil, ErrMissingTransactionRef
	}

	firstName := strings.TrimSpace(input.FirstName)
	if firstName == "" {
		firstName = "User"
	}
	lastName := strings.TrimSpace(input.LastName)
	if lastName == "" {
		lastName = "Customer"
	}

	payload := chapaInitializeRequest{
		Amount:      input.Amount.String(),
		Currency:    input.Currency,
		Email:       input.Email,
		FirstName:   firstName,
		LastName:    lastName,
		TxRef:       input.TxRef,
		CallbackURL: g.cfg.CallbackURL,
		ReturnURL:   withTxRef(g.cfg.ReturnURL, input.TxRef),
		Customization: chapaCustomization{
			Title:       "Course Payment",
			Description: fmt.Sprintf("Payment for %s course", input.CourseTitle),
		},
		Meta: chapaMeta{
			UserID:    input.Meta.UserID,
			CourseID:  input.Meta.CourseID,
			UserEmail: input.Meta.UserEmail,
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := g.do(ctx, "initialize", http.MethodPost, "/v1/transaction/initialize", encoded)
	if err != nil {
		return nil, err
	}

	var response struct {
		Status string `json:"status"`
		Data   *struct {
			CheckoutURL string `json:"checkout_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &RejectedError{
			Gateway:    g.Name(),
			Operation:  "initialize",
			StatusCode: http.StatusOK,
			Message:    "malformed gateway response",
			Body:       body,
		}
	}

	output := &InitializeOutput{RawResponse: body}
	if response.Data != nil {
		output.CheckoutURL = strings.TrimSpace(response.Data.CheckoutURL)
	}
	return output, nil
}

func (g *ChapaGateway) Verify(ctx context.Context, txRef string) (*Transaction, error) {
	if strings.TrimSpace(g.cfg.SecretKey) == "" {
		return nil, ErrSecretKeyNotConfigured
	}
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrMissingTransactionRef
	}

	body, err := g.do(ctx, "verify", http.MethodGet, "/v1/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Status string `json:"status"`
		Data   *struct {
			Status    string          `json:"status"`
			TxRef     string          `json:"tx_ref"`
			Amount    decimal.Decimal `json:"amount"`
			Currency  string          `json:"currency"`
			CreatedAt string          `json:"created_at"`
			Meta      json.RawMessage `json:"meta"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &RejectedError{
			Gateway:    g.Name(),
			Operation:  "verify",
			StatusCode: http.StatusOK,
			Message:    "malformed gateway response",
			Body:       body,
		}
	}

	transaction := &Transaction{TxRef: txRef, Raw: body}
	if response.Data == nil {
		transaction.Status = normalizeStatus(response.Status)
		return transaction, nil
	}

	transaction.Status = normalizeStatus(response.Data.Status)
	transaction.Amount = response.Data.Amount
	transaction.Currency = strings.ToUpper(strings.TrimSpace(response.Data.Currency))
	transaction.Meta = parseChapaMeta(response.Data.Meta)
	if ref := strings.TrimSpace(response.Data.TxRef); ref != "" {
		transaction.TxRef = ref
	}
	if createdAt, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(response.Data.CreatedAt)); err == nil {
		transaction.CreatedAt = &createdAt
	}

	return transaction, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw payload. When
// no webhook secret is configured every payload is accepted; the payload is
// never trusted anyway since processing re-verifies with the gateway.
func (g *ChapaGateway) VerifyWebhookSignature(payload []byte, signature string) error {
	secret := strings.TrimSpace(g.cfg.WebhookSecret)
	if secret == "" {
		return nil
	}

	candidate, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(candidate) == 0 {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	if !hmac.Equal(candidate, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

func (g *ChapaGateway) do(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newTransportError(g.Name(), operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, chapaMaxBodyBytes))
	if err != nil {
		return nil, newTransportError(g.Name(), operation, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &RejectedError{
			Gateway:    g.Name(),
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    rejectedMessage(body, http.StatusText(resp.StatusCode)),
			Body:       body,
		}
	}

	return body, nil
}

// parseChapaMeta accepts meta as an object or as a JSON encoded string, with
// values as strings or numbers.
func parseChapaMeta(raw json.RawMessage) Meta {
	if len(raw) == 0 || string(raw) == "null" {
		return Meta{}
	}

	var encoded string
	if json.Unmarshal(raw, &encoded) == nil {
		raw = json.RawMessage(encoded)
	}

	var values map[string]interface{}
	if json.Unmarshal(raw, &values) != nil {
		return Meta{}
	}

	return Meta{
		UserID:    metaString(values["userId"]),
		CourseID:  metaString(values["courseId"]),
		UserEmail: metaString(values["userEmail"]),
	}
}

func metaString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func withTxRef(returnURL, txRef string) string {
	returnURL = strings.TrimSpace(returnURL)
	if returnURL == "" {
		return ""
	}
	parsed, err := url.Parse(returnURL)
	if err != nil {
		return returnURL
	}
	query := parsed.Query()
	query.Set("tx_ref", txRef)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
