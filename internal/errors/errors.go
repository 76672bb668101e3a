// Package errors provides unified error handling for the capture and narrative pipeline.
// Codes map onto gRPC status codes so failures can cross the inference transport intact.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies a failure.
type Code int

const (
	CodeUnspecified Code = iota
	CodeUnknown
	CodeInternal
	CodeInvalidArgument
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeCaptureFailed
	CodeInferenceFailed
	CodeInferenceEmpty
	CodeInferenceUnavailable
	CodeControlFailed
	CodeConfigMissing
	CodeConfigInvalid
	CodeSessionActive
	CodeSessionIdle
	CodeReportFailed
)

var codeNames = map[Code]string{
	CodeUnspecified:          "UNSPECIFIED",
	CodeUnknown:              "UNKNOWN",
	CodeInternal:             "INTERNAL",
	CodeInvalidArgument:      "INVALID_ARGUMENT",
	CodeUnavailable:          "UNAVAILABLE",
	CodeTimeout:              "TIMEOUT",
	CodeCancelled:            "CANCELLED",
	CodeCaptureFailed:        "CAPTURE_FAILED",
	CodeInferenceFailed:      "INFERENCE_FAILED",
	CodeInferenceEmpty:       "INFERENCE_EMPTY",
	CodeInferenceUnavailable: "INFERENCE_UNAVAILABLE",
	CodeControlFailed:        "CONTROL_FAILED",
	CodeConfigMissing:        "CONFIG_MISSING",
	CodeConfigInvalid:        "CONFIG_INVALID",
	CodeSessionActive:        "SESSION_ACTIVE",
	CodeSessionIdle:          "SESSION_IDLE",
	CodeReportFailed:         "REPORT_FAILED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// parseCode is the inverse of String.
func parseCode(s string) Code {
	for c, name := range codeNames {
		if name == s {
			return c
		}
	}
	return CodeUnknown
}

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnspecified:          codes.Unknown,
	CodeUnknown:              codes.Unknown,
	CodeInternal:             codes.Internal,
	CodeInvalidArgument:      codes.InvalidArgument,
	CodeUnavailable:          codes.Unavailable,
	CodeTimeout:              codes.DeadlineExceeded,
	CodeCancelled:            codes.Canceled,
	CodeCaptureFailed:        codes.Unavailable,
	CodeInferenceFailed:      codes.Internal,
	CodeInferenceEmpty:       codes.Internal,
	CodeInferenceUnavailable: codes.Unavailable,
	CodeControlFailed:        codes.Unavailable,
	CodeConfigMissing:        codes.FailedPrecondition,
	CodeConfigInvalid:        codes.InvalidArgument,
	CodeSessionActive:        codes.FailedPrecondition,
	CodeSessionIdle:          codes.FailedPrecondition,
	CodeReportFailed:         codes.Internal,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// ToProto converts to a structpb detail message.
func (e *AppError) ToProto() *structpb.Struct {
	fields := map[string]any{
		"code":    e.Code.String(),
		"message": e.Message,
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	detail, _ := structpb.NewStruct(fields)
	return detail
}

// GRPCStatus returns a gRPC status with the detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.ToProto()); err == nil {
		st = withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		s, ok := detail.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := s.GetFields()
		appErr := &AppError{
			Code:    parseCode(fields["code"].GetStringValue()),
			Message: fields["message"].GetStringValue(),
			Cause:   err,
		}
		if md := fields["metadata"].GetStructValue(); md != nil {
			for k, v := range md.GetFields() {
				appErr.WithMetadata(k, v.GetStringValue())
			}
		}
		return appErr
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.Unavailable:
		return CodeInferenceUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInferenceFailed
	case codes.FailedPrecondition:
		return CodeConfigMissing
	default:
		return CodeUnknown
	}
}

// IsCode checks if any error in the chain has a specific code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first AppError in the chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}
