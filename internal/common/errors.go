package common

import (
	"encoding/json"
	"errors"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain identifies errors raised by this service in gRPC details.
const ErrorDomain = "collabhub"

// Code is a machine-readable error code.
type Code string

const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeForbidden  Code = "FORBIDDEN"
	CodeBadRequest Code = "BAD_REQUEST"
	CodeInternal   Code = "INTERNAL"
)

func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeNotFound:
		return codes.NotFound
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeBadRequest:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// AppError is the single typed error every core operation returns.
type AppError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Code == t.Code
	}
	return false
}

// GRPCStatus lets status.FromError pick up the mapped code and details.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.Code.GRPCCode(), e.Message)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(e.Code),
		Domain: ErrorDomain,
	})
	if err != nil {
		return st
	}
	return detailed
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound   = &AppError{Code: CodeNotFound}
	ErrForbidden  = &AppError{Code: CodeForbidden}
	ErrBadRequest = &AppError{Code: CodeBadRequest}
	ErrInternal   = &AppError{Code: CodeInternal}
)

func NotFound(msg string) *AppError   { return &AppError{Code: CodeNotFound, Message: msg} }
func Forbidden(msg string) *AppError  { return &AppError{Code: CodeForbidden, Message: msg} }
func BadRequest(msg string) *AppError { return &AppError{Code: CodeBadRequest, Message: msg} }

func Internal(msg string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: msg, Cause: cause}
}

func Wrap(code Code, msg string, cause error) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// AsAppError returns err as an *AppError, lifting untyped errors to Internal.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("internal error", err)
}

type errorBody struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// WriteError renders err as a JSON error response.
func WriteError(w http.ResponseWriter, err error) {
	appErr := AsAppError(err)
	var body errorBody
	body.Error.Code = appErr.Code
	body.Error.Message = appErr.Message
	WriteJSON(w, appErr.Code.HTTPStatus(), body)
}

func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
