// Package apperr defines the application error taxonomy shared by ingestion,
// indexing, answering and the user-facing surfaces.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindUnknown           Kind = "unknown"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindIndexNotFound     Kind = "index_not_found"
	KindProviderConfig    Kind = "provider_config"
	KindExternalCall      Kind = "external_call"
	KindBusy              Kind = "busy"
	KindNoDocument        Kind = "no_document"
	KindEmptyDocument     Kind = "empty_document"
	KindEmptyQuestion     Kind = "empty_question"
	KindNotFound          Kind = "not_found"
)

// Error is an application error carrying a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches kind and message to err. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedFormat = New(KindUnsupportedFormat, "unsupported file format")
	ErrIndexNotFound     = New(KindIndexNotFound, "vector index not found")
	ErrProviderConfig    = New(KindProviderConfig, "provider is not configured")
	ErrExternalCall      = New(KindExternalCall, "external call failed")
	ErrBusy              = New(KindBusy, "a document is already being processed")
	ErrNoDocument        = New(KindNoDocument, "no document uploaded")
	ErrEmptyDocument     = New(KindEmptyDocument, "document contains no text")
	ErrEmptyQuestion     = New(KindEmptyQuestion, "question is empty")
	ErrNotFound          = New(KindNotFound, "not found")
)

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns text safe to show an end user. Raw provider errors are never exposed.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindUnsupportedFormat:
		return "Unsupported file format. Please upload a PDF or Word (.docx) document."
	case KindIndexNotFound, KindNoDocument:
		return "Please upload a document first."
	case KindProviderConfig:
		return "Please configure your API keys for the selected provider."
	case KindBusy:
		return "A document is already being processed. Please wait."
	case KindEmptyDocument:
		return "No text could be extracted from the document."
	case KindEmptyQuestion:
		return "Please enter a question."
	case KindNotFound:
		return "Not found."
	default:
		return "Sorry, Something Went Wrong!"
	}
}

// HTTPStatus maps an error to the status code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case KindNoDocument, KindEmptyDocument, KindEmptyQuestion:
		return http.StatusBadRequest
	case KindIndexNotFound, KindBusy:
		return http.StatusConflict
	case KindProviderConfig:
		return http.StatusPreconditionFailed
	case KindNotFound:
		return http.StatusNotFound
	case KindExternalCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
