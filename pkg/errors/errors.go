package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeProviderError  ErrorCode = "PROVIDER_ERROR"
	CodeStoreError     ErrorCode = "STORE_ERROR"
	CodeInternal       ErrorCode = "INTERNAL_ERROR"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	// RetryAfter 仅限流错误使用
	RetryAfter time.Duration
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError 创建无效输入错误
func NewInvalidInputError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: message,
	}
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewForbiddenError 创建禁止访问错误
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    CodeForbidden,
		Message: message,
	}
}

// NewRateLimitedError 创建限流错误
func NewRateLimitedError(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewProviderError 创建上游提供商错误
func NewProviderError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeProviderError,
		Message: message,
		Err:     cause,
	}
}

// NewStoreError 创建存储错误
func NewStoreError(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeStoreError,
		Message: message,
		Err:     cause,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
	}
}

// NewInternalErrorWithCause 创建带原因的内部错误
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Err:     cause,
	}
}

// NewNotReadyError 创建服务未就绪错误
func NewNotReadyError(message string) *AppError {
	return &AppError{
		Code:    CodeServiceUnavail,
		Message: message,
	}
}

func codeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// IsNotFound 判断是否为未找到错误
func IsNotFound(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeNotFound
}

// IsInvalidInput 判断是否为无效输入错误
func IsInvalidInput(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeInvalidInput
}

// IsForbidden 判断是否为禁止访问错误
func IsForbidden(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeForbidden
}

// IsRateLimited 判断是否为限流错误
func IsRateLimited(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeRateLimited
}

// IsNotReady 判断是否为服务未就绪错误
func IsNotReady(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeServiceUnavail
}

// RetryAfterOf 提取限流错误的重试间隔, 非限流错误返回 0
func RetryAfterOf(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == CodeRateLimited {
		return appErr.RetryAfter
	}
	return 0
}
