package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-document failure.
type ErrorKind string

const (
	ErrFileNotFound          ErrorKind = "FileNotFound"
	ErrNotAFile              ErrorKind = "NotAFile"
	ErrDownloadFailed        ErrorKind = "DownloadFailed"
	ErrResourceTooLarge      ErrorKind = "ResourceTooLarge"
	ErrUnresolvableReference ErrorKind = "UnresolvableReference"
	ErrEncryptedDocument     ErrorKind = "EncryptedDocument"
	ErrCorruptDocument       ErrorKind = "CorruptDocument"
	ErrScannedDocument       ErrorKind = "ScannedDocument"
	ErrExtractionService     ErrorKind = "ExtractionServiceError"
	ErrStoreUnavailable      ErrorKind = "StoreUnavailable"
	ErrPermissionDenied      ErrorKind = "PermissionDenied"
	ErrSchemaMismatch        ErrorKind = "SchemaMismatch"
	ErrDuplicateSkipped      ErrorKind = "DuplicateSkipped"
	ErrInternal              ErrorKind = "Internal"
)

// ServiceErrorKind refines ErrExtractionService.
type ServiceErrorKind string

const (
	ServiceRateLimited     ServiceErrorKind = "RateLimited"
	ServiceTimeout         ServiceErrorKind = "Timeout"
	ServiceInvalidResponse ServiceErrorKind = "InvalidResponse"
	ServiceUnavailable     ServiceErrorKind = "ServiceUnavailable"
)

// Error is the pipeline's typed error. Optional fields carry the detail named
// by the kind: Status for DownloadFailed, Field for SchemaMismatch, Service for
// ExtractionServiceError and ManualURL for UnresolvableReference.
type Error struct {
	Kind      ErrorKind
	Service   ServiceErrorKind
	Status    int
	Field     string
	ManualURL string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	label := string(e.Kind)
	switch {
	case e.Service != "":
		label = fmt.Sprintf("%s{%s}", e.Kind, e.Service)
	case e.Kind == ErrDownloadFailed && e.Status != 0:
		label = fmt.Sprintf("%s{%d}", e.Kind, e.Status)
	case e.Field != "":
		label = fmt.Sprintf("%s{%s}", e.Kind, e.Field)
	}
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.ManualURL != "" {
		msg += " (try manual retrieval at " + e.ManualURL + ")"
	}
	if msg == "" {
		return label
	}
	return label + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind and, when set on the target, service kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Service == "" || t.Service == e.Service
}

// NewError builds an *Error of kind wrapping err.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// ServiceError builds an ExtractionServiceError of the given service kind.
func ServiceError(kind ServiceErrorKind, msg string, err error) *Error {
	return &Error{Kind: ErrExtractionService, Service: kind, Msg: msg, Err: err}
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain, or ErrInternal.
func KindOf(err error) ErrorKind {
	if pe, ok := AsError(err); ok {
		return pe.Kind
	}
	return ErrInternal
}

// IsServiceKind reports whether err is an ExtractionServiceError of kind k.
func IsServiceKind(err error, k ServiceErrorKind) bool {
	pe, ok := AsError(err)
	return ok && pe.Kind == ErrExtractionService && pe.Service == k
}
