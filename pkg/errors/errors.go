package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeWidgetError    = "WIDGET_ERROR"
	CodeFetch          = "FETCH_ERROR"
	CodeValidation     = "VALIDATION_ERROR"
	CodeCache          = "CACHE_ERROR"
	CodeService        = "SERVICE_ERROR"
	CodeMergeReference = "MERGE_REFERENCE_ERROR"
	CodeTimerCompute   = "TIMER_COMPUTE_ERROR"
)

type WidgetError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *WidgetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *WidgetError) Unwrap() error {
	return e.Cause
}

func NewWidgetError(message, code string, statusCode int, context map[string]any) *WidgetError {
	return &WidgetError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *WidgetError) WithCause(cause error) *WidgetError {
	e.Cause = cause
	return e
}

// FetchError covers transport failures (StatusCode 0), non-2xx responses and
// undecodable bodies of a JSON retrieval.
type FetchError struct {
	*WidgetError
	URL string
}

func NewFetchError(message, url string, statusCode int, cause error) *FetchError {
	return &FetchError{
		WidgetError: &WidgetError{
			Message:    message,
			Code:       CodeFetch,
			StatusCode: statusCode,
			Context: map[string]any{
				"url": url,
			},
			Cause: cause,
		},
		URL: url,
	}
}

type ValidationError struct {
	*WidgetError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		WidgetError: &WidgetError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*WidgetError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		WidgetError: &WidgetError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*WidgetError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		WidgetError: &WidgetError{
			Message:    message,
			Code:       CodeService,
			StatusCode: 500,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// MergeReferenceError reports a custom record whose identifier matches no
// official record. The record is skipped; the merge continues.
type MergeReferenceError struct {
	*WidgetError
	ID string
}

func NewMergeReferenceError(id string, position int) *MergeReferenceError {
	return &MergeReferenceError{
		WidgetError: &WidgetError{
			Message:    fmt.Sprintf("custom record references unknown id %q", id),
			Code:       CodeMergeReference,
			StatusCode: 422,
			Context: map[string]any{
				"id":       id,
				"position": position,
			},
		},
		ID: id,
	}
}

type TimerComputeError struct {
	*WidgetError
	Handle string
}

func NewTimerComputeError(message, handle string, cause error) *TimerComputeError {
	return &TimerComputeError{
		WidgetError: &WidgetError{
			Message:    message,
			Code:       CodeTimerCompute,
			StatusCode: 500,
			Context: map[string]any{
				"handle": handle,
			},
			Cause: cause,
		},
		Handle: handle,
	}
}

func IsFetchError(err error) bool {
	var fe *FetchError
	return stderrors.As(err, &fe)
}

// StatusCodeOf returns the HTTP status carried by a FetchError, or 0.
func StatusCodeOf(err error) int {
	var fe *FetchError
	if stderrors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
