//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vibast-solutions/ms-go-course-payments/app/types"
)

const (
	defaultHTTPBase = "http://localhost:48080"
	defaultGRPCAddr = "localhost:49090"

	enrollmentService = "/enrollment.EnrollmentService/"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	return c.doJSONWithAPIKey(t, method, path, body, callerAPIKey())
}

func (c *httpClient) doJSONWithAPIKey(t *testing.T, method, path string, body any, apiKey string) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func dialGRPC(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial failed: %v", err)
	}
	return conn
}

func grpcContextWithHeaders(apiKey, requestID string) context.Context {
	ctx := context.Background()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
	}
	return ctx
}

func callerContext() context.Context {
	return grpcContextWithHeaders(callerAPIKey(), fmt.Sprintf("e2e-grpc-%d", time.Now().UnixNano()))
}

func invokeStruct(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := conn.Invoke(ctx, enrollmentService+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func TestCoursePaymentsE2E(t *testing.T) {
	httpBase := os.Getenv("COURSE_PAYMENTS_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultHTTPBase
	}
	grpcAddr := os.Getenv("COURSE_PAYMENTS_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = defaultGRPCAddr
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	client := newHTTPClient(httpBase)
	conn := dialGRPC(t, grpcAddr)
	defer conn.Close()

	t.Run("HTTPMissingRequestID", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, httpBase+"/payments/status/1?userId=1", nil)
		if err != nil {
			t.Fatalf("new request failed: %v", err)
		}
		req.Header.Set("X-API-Key", callerAPIKey())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing x-request-id, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPUnauthorizedMissingAPIKey", func(t *testing.T) {
		resp, _ := client.doJSONWithAPIKey(t, http.MethodGet, "/payments/status/1?userId=1", nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for missing x-api-key, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPForbiddenInsufficientAccess", func(t *testing.T) {
		resp, _ := client.doJSONWithAPIKey(t, http.MethodGet, "/payments/status/1?userId=1", nil, noAccessAPIKey())
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for insufficient access, got %d", resp.StatusCode)
		}
		if authMock.validationsFor(noAccessAPIKey()) == 0 {
			t.Fatal("expected the auth service to be asked about the caller")
		}
	})

	t.Run("HTTPHealthIsPublic", func(t *testing.T) {
		resp, err := http.Get(httpBase + "/health")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPMetricsExposed", func(t *testing.T) {
		resp, err := http.Get(httpBase + "/metrics")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("course_payments_")) {
			t.Fatalf("expected course payments metrics, got %d", resp.StatusCode)
		}
	})

	t.Run("GRPCMissingRequestID", func(t *testing.T) {
		_, err := invokeStruct(grpcContextWithHeaders(callerAPIKey(), ""), conn, "GetPayment", map[string]any{"txRef": "missing"})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument for missing x-request-id, got %v", err)
		}
	})

	t.Run("GRPCUnauthorizedMissingAPIKey", func(t *testing.T) {
		ctx := grpcContextWithHeaders("", fmt.Sprintf("e2e-grpc-no-auth-%d", time.Now().UnixNano()))
		_, err := invokeStruct(ctx, conn, "GetPayment", map[string]any{"txRef": "missing"})
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("GRPCForbiddenInsufficientAccess", func(t *testing.T) {
		ctx := grpcContextWithHeaders(noAccessAPIKey(), fmt.Sprintf("e2e-grpc-forbidden-%d", time.Now().UnixNano()))
		_, err := invokeStruct(ctx, conn, "GetPayment", map[string]any{"txRef": "missing"})
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("GRPCHealthWithoutCredentials", func(t *testing.T) {
		res, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("expected SERVING, got %s", res.GetStatus())
		}
	})

	t.Run("HTTPValidationInitialize", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/initialize/1", map[string]any{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for invalid initialize request, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.ErrorResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v body=%s", err, string(body))
		}
		if payload.Status != types.StatusFail {
			t.Fatalf("expected fail status, got %+v", payload)
		}
	})

	t.Run("GRPCValidationInitialize", func(t *testing.T) {
		_, err := invokeStruct(callerContext(), conn, "InitializePayment", map[string]any{})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("HTTPVerifyMissingReference", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/payments/verify", map[string]any{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPStatusUnknownCourse", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/payments/status/999999?userId=1", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("GRPCStatusUnknownCourse", func(t *testing.T) {
		_, err := invokeStruct(callerContext(), conn, "CheckEnrollmentStatus", map[string]any{"courseId": 999999, "userId": 1})
		if status.Code(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("HTTPGetTransactionNotFound", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/payments/transactions/course-0-0-0", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("GRPCGetPaymentNotFound", func(t *testing.T) {
		_, err := invokeStruct(callerContext(), conn, "GetPayment", map[string]any{"txRef": "course-0-0-0"})
		if status.Code(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("HTTPWebhookMissingReference", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodPost, "/webhooks/chapa", map[string]any{"event": "charge.success"}, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("expected request id echoed on webhook response")
		}
	})

	t.Run("HTTPWebhookUnknownGateway", func(t *testing.T) {
		resp, body := client.doJSONWithAPIKey(t, http.MethodPost, "/webhooks/paypal", map[string]any{"tx_ref": "course-1-1-1"}, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})
}
