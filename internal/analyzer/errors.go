package analyzer

import (
	"errors"
	"fmt"
)

// Kind classifies why an analysis fell back to default metrics
type Kind string

const (
	KindUnconfigured        Kind = "unconfigured"
	KindMalformedResponse   Kind = "malformed_response"
	KindMissingMeasurements Kind = "missing_measurements"
	KindTransportFailure    Kind = "transport_failure"
	KindUnexpected          Kind = "unexpected"
)

// Sentinels usable with errors.Is
var (
	ErrUnconfigured        = &AnalysisError{Kind: KindUnconfigured}
	ErrMalformedResponse   = &AnalysisError{Kind: KindMalformedResponse}
	ErrMissingMeasurements = &AnalysisError{Kind: KindMissingMeasurements}
	ErrTransportFailure    = &AnalysisError{Kind: KindTransportFailure}
	ErrUnexpected          = &AnalysisError{Kind: KindUnexpected}
)

// AnalysisError is a classified pipeline failure
type AnalysisError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *AnalysisError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// Is matches any AnalysisError of the same kind
func (e *AnalysisError) Is(target error) bool {
	t, ok := target.(*AnalysisError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, msg string, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindUnexpected when err is not an
// AnalysisError. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}
