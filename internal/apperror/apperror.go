// Package apperror defines the error taxonomy shared by the gateway, the retrier,
// and the scan orchestrator.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRateLimited     = errors.New("rate limited")
	ErrTransient       = errors.New("transient failure")
	ErrRepositoryEmpty = errors.New("repository is empty")
	ErrFatal           = errors.New("fatal error")
	ErrInterrupted     = errors.New("scan interrupted")
)

// Kind classifies a failure for retry and skip decisions.
type Kind int

const (
	KindFatal Kind = iota
	KindRateLimited
	KindTransient
	KindRepositoryEmpty
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindRepositoryEmpty:
		return "repository_empty"
	default:
		return "fatal"
	}
}

// Retryable reports whether errors of this kind may succeed on a later attempt.
func (k Kind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

func (k Kind) sentinel() error {
	switch k {
	case KindRateLimited:
		return ErrRateLimited
	case KindTransient:
		return ErrTransient
	case KindRepositoryEmpty:
		return ErrRepositoryEmpty
	default:
		return ErrFatal
	}
}

type AppError struct {
	Kind       Kind
	Op         string        // remote operation, e.g. "list commits"
	RetryAfter time.Duration // optional hint from the remote API
	Err        error         // underlying cause
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AppError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func RateLimited(op string, retryAfter time.Duration, err error) *AppError {
	return &AppError{Kind: KindRateLimited, Op: op, RetryAfter: retryAfter, Err: err}
}

func Transient(op string, err error) *AppError {
	return &AppError{Kind: KindTransient, Op: op, Err: err}
}

func RepositoryEmpty(op string, err error) *AppError {
	return &AppError{Kind: KindRepositoryEmpty, Op: op, Err: err}
}

func Fatal(op string, err error) *AppError {
	return &AppError{Kind: KindFatal, Op: op, Err: err}
}

// KindOf returns the classification of err. Unclassified errors are fatal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrRepositoryEmpty):
		return KindRepositoryEmpty
	}
	return KindFatal
}

// RetryAfterOf returns the retry hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}

// IsRepositoryEmpty reports whether err signals a repository without content.
func IsRepositoryEmpty(err error) bool {
	return KindOf(err) == KindRepositoryEmpty
}
