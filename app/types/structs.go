package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// The gRPC surface exchanges google.protobuf.Struct messages carrying the
// same JSON fields as the HTTP bodies.

func InitializePaymentRequestFromStruct(in *structpb.Struct) (*InitializePaymentRequest, error) {
	fields, err := structFields(in)
	if err != nil {
		return nil, err
	}

	req := &InitializePaymentRequest{}
	if req.CourseID, err = optionalID(fields, "courseId"); err != nil {
		return nil, err
	}
	if req.UserID, err = optionalID(fields, "userId"); err != nil {
		return nil, err
	}
	if raw, ok := fields["amount"]; ok && raw != nil {
		amount, err := decimal.NewFromString(strings.TrimSpace(stringValue(raw)))
		if err != nil {
			return nil, errors.New("invalid amount")
		}
		req.Amount = amount
		req.HasAmount = true
	}
	return req, nil
}

func VerifyPaymentRequestFromStruct(in *structpb.Struct) (*VerifyPaymentRequest, error) {
	fields, err := structFields(in)
	if err != nil {
		return nil, err
	}
	return &VerifyPaymentRequest{TxRef: TxRefFromPayload(fields)}, nil
}

func EnrollmentStatusRequestFromStruct(in *structpb.Struct) (*EnrollmentStatusRequest, error) {
	fields, err := structFields(in)
	if err != nil {
		return nil, err
	}

	req := &EnrollmentStatusRequest{}
	if req.CourseID, err = optionalID(fields, "courseId"); err != nil {
		return nil, err
	}
	if req.UserID, err = optionalID(fields, "userId"); err != nil {
		return nil, err
	}
	return req, nil
}

func GetPaymentRequestFromStruct(in *structpb.Struct) (*GetPaymentRequest, error) {
	fields, err := structFields(in)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{TxRef: TxRefFromPayload(fields)}, nil
}

// ToStruct converts a response value through its JSON form.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func structFields(in *structpb.Struct) (map[string]interface{}, error) {
	if in == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func optionalID(fields map[string]interface{}, key string) (uint64, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, nil
	}
	value := strings.TrimSpace(stringValue(raw))
	if value == "" {
		return 0, nil
	}
	return parseID(value, key)
}

func stringValue(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}
