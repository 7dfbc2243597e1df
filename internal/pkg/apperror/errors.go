package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden           ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest          ErrorCode = "BAD_REQUEST"
	ErrCodeConflict            ErrorCode = "CONFLICT"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidState        ErrorCode = "INVALID_STATE"
	ErrCodeDependenciesUnmet   ErrorCode = "DEPENDENCIES_UNMET"
	ErrCodeNoMediatorAvailable ErrorCode = "NO_MEDIATOR_AVAILABLE"
	ErrCodeProcessorFailure    ErrorCode = "PROCESSOR_FAILURE"
	ErrCodePercentageMismatch  ErrorCode = "PERCENTAGE_MISMATCH"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	// Details перечисляет конкретные нарушения для VALIDATION_ERROR
	// и невыполненные зависимости для DEPENDENCIES_UNMET.
	Details []string
	// Retryable выставляется для PROCESSOR_FAILURE: вызывающая сторона
	// может безопасно повторить операцию позже.
	Retryable bool
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation создаёт ошибку валидации со списком нарушений.
func Validation(message string, details []string) *AppError {
	appErr := New(ErrCodeValidation, message)
	appErr.Details = details
	return appErr
}

// Processor оборачивает сбой платёжного провайдера.
// Детальная причина остаётся в логах, клиент видит общий текст.
func Processor(err error, message string) *AppError {
	appErr := Wrap(err, ErrCodeProcessorFailure, message)
	appErr.Retryable = true
	return appErr
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation, ErrCodePercentageMismatch:
		return http.StatusBadRequest
	case ErrCodeConflict, ErrCodeInvalidState, ErrCodeDependenciesUnmet:
		return http.StatusConflict
	case ErrCodeNoMediatorAvailable:
		return http.StatusServiceUnavailable
	case ErrCodeProcessorFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsInvalidState(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidState
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

func IsRetryable(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Retryable
}

var (
	ErrTransactionNotFound = New(ErrCodeNotFound, "транзакция не найдена")
	ErrMilestoneNotFound   = New(ErrCodeNotFound, "веха не найдена")
	ErrDisputeNotFound     = New(ErrCodeNotFound, "спор не найден")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrForbidden           = New(ErrCodeForbidden, "недостаточно прав")
)
