// Package pbserrors defines the named error kinds PBS produces and their
// mapping onto HTTP status codes, per the error table in spec section 7.
//
// Version: v0.1.0
package pbserrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Version is the semantic version of this error-kind package.
const Version = "v0.1.0"

// Kind identifies a class of failure PBS can produce. It is comparable and
// usable as a map key so callers can bucket metrics by kind.
type Kind string

const (
	// Client errors (400/409).
	InvalidRequestHeader Kind = "InvalidRequestHeader"
	InvalidRequestBody   Kind = "InvalidRequestBody"
	InvalidReportingTime Kind = "InvalidReportingTime"
	NoKeysAvailable      Kind = "NoKeysAvailable"
	DuplicateKey         Kind = "DuplicateKey"
	BudgetExhausted      Kind = "BudgetExhausted"

	// Server errors (500/503).
	NotRunning                           Kind = "NotRunning"
	Uninitialized                        Kind = "Uninitialized"
	QueueFull                            Kind = "QueueFull"
	QueueEmpty                           Kind = "QueueEmpty"
	KeyExists                            Kind = "KeyExists"
	KeyNotFound                          Kind = "KeyNotFound"
	InvalidPriority                      Kind = "InvalidPriority"
	DispatcherExhaustedRetries           Kind = "DispatcherExhaustedRetries"
	InvalidCommandVersion                Kind = "InvalidCommandVersion"
	InvalidCommandType                   Kind = "InvalidCommandType"
	TransactionDependenciesUninitialized Kind = "TransactionDependenciesUninitialized"
	InvalidCertPath                      Kind = "InvalidCertPath"
	InvalidKeyPath                       Kind = "InvalidKeyPath"
	Internal                             Kind = "Internal"

	// Health-probe errors (section 4.11).
	CouldNotOpenMeminfoFile   Kind = "CouldNotOpenMeminfoFile"
	CouldNotFindMemoryInfo    Kind = "CouldNotFindMemoryInfo"
	CouldNotParseMeminfoLine  Kind = "CouldNotParseMeminfoLine"
	InvalidReadFileSystemInfo Kind = "InvalidReadFileSystemInfo"

	// Configuration-load errors (section 4.14).
	MissingConfigKey Kind = "MissingConfigKey"
)

// Status returns the HTTP status code this kind is surfaced as, per spec
// section 7's table. Kinds not in the table map to 500.
func (k Kind) Status() int {
	switch k {
	case InvalidRequestHeader, InvalidRequestBody, InvalidReportingTime,
		NoKeysAvailable, DuplicateKey:
		return http.StatusBadRequest
	case BudgetExhausted:
		return http.StatusConflict
	case NotRunning, Uninitialized:
		return http.StatusServiceUnavailable
	case QueueFull:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a caller may reasonably retry a request that
// failed with this kind (mirrors the "retryable server error" row in spec
// section 7).
func (k Kind) Retryable() bool {
	return k == QueueFull
}

// Error implements the error interface so a bare Kind can be returned or
// wrapped directly.
func (k Kind) Error() string {
	return string(k)
}

// kindError pairs a Kind with additional context, preserving errors.Is/As
// compatibility with the bare Kind sentinel.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string {
	if e.msg == "" {
		return string(e.kind)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *kindError) Is(target error) bool {
	var k Kind
	if errors.As(target, &k) {
		return k == e.kind
	}
	return false
}

func (e *kindError) Unwrap() error {
	return e.kind
}

// New returns an error of the given kind with additional context.
func New(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind carried by err, returning (Internal, false) if err
// does not carry a recognized Kind.
func KindOf(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return Internal, false
}
