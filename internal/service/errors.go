package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request for the transport layer.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindFetchFailure      Kind = "fetch_failure"
	KindStorageFailure    Kind = "storage_failure"
	KindModelLoadFailure  Kind = "model_load_failure"
	KindEngineFailure     Kind = "engine_failure"
)

// Stage is a step of the request lifecycle. Stages are reached in declaration order.
type Stage string

const (
	StageReceived         Stage = "received"
	StageFormatValidated  Stage = "format_validated"
	StageResourceAcquired Stage = "resource_acquired"
	StageModelAcquired    Stage = "model_acquired"
	StageTranscribed      Stage = "transcribed"
	StageResponseShaped   Stage = "response_shaped"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Error is a classified request failure. Stage is the last stage the request
// reached and Value the offending input (filename, URL, model key).
type Error struct {
	Kind  Kind
	Stage Stage
	Value string
	Err   error
}

func (e *Error) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Value, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind, true
	}
	return "", false
}
