package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// The gRPC transport carries calls and results as google.protobuf.Struct
// messages. Numbers come back as float64, which is also the scalar form
// of number cells.

// EncodeCall converts a call to a protobuf Struct.
func EncodeCall(call *Call) (*structpb.Struct, error) {
	return toStruct(call)
}

// DecodeCall converts a protobuf Struct back to a call.
func DecodeCall(s *structpb.Struct) (*Call, error) {
	var call Call
	if err := fromStruct(s, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// EncodeResult converts a result to a protobuf Struct.
func EncodeResult(res *Result) (*structpb.Struct, error) {
	if res == nil {
		res = &Result{}
	}
	return toStruct(res)
}

// DecodeResult converts a protobuf Struct back to a result.
func DecodeResult(s *structpb.Struct) (*Result, error) {
	var res Result
	if err := fromStruct(s, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: unmarshal: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("wire: build struct: %w", err)
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("wire: nil message")
	}
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("wire: marshal: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: decode: %w", err)
	}
	return nil
}
