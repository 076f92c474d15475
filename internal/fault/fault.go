// Package fault classifies the fatal conditions a dispatch can end in.
//
// Every error that leaves a component is a *Error carrying a Kind, so the
// CLI can report one diagnostic line and callers (and tests) can tell a
// missing manifest from an unreachable host without string matching.
package fault

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

type Kind int

const (
	Unknown Kind = iota
	ToolMissing
	HostUnreachable
	ConfigMissing
	ConfigInvalid
	FileMissing
	TransferFailure
	ProvisionFailure
	SubmissionFailure
	UnexpectedArgument
	Canceled
)

var kindNames = map[Kind]string{
	Unknown:            "unknown",
	ToolMissing:        "tool missing",
	HostUnreachable:    "host unreachable",
	ConfigMissing:      "config missing",
	ConfigInvalid:      "config invalid",
	FileMissing:        "file missing",
	TransferFailure:    "transfer failure",
	ProvisionFailure:   "provision failure",
	SubmissionFailure:  "submission failure",
	UnexpectedArgument: "unexpected argument",
	Canceled:           "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is a classified failure. The message is the cause's message; the
// kind is only used for classification.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: pkgerrors.Errorf(format, args...)}
}

// Wrap classifies err and prefixes it with a formatted message. A nil err
// yields nil. An err that is already classified keeps its kind unless it is
// Unknown.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if k := KindOf(err); k != Unknown && k != kind {
		kind = k
	}
	return &Error{Kind: kind, Err: pkgerrors.Wrapf(err, format, args...)}
}

// KindOf reports the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
