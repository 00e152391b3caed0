// Package averror defines the error kinds returned by the encode/merge
// pipelines and composes libav failures with the libav log lines captured
// since the previous failure.
package averror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/ffrecorder/pkg/avlog"
)

type Kind int

const (
	KindUndefined = Kind(iota)
	KindIO
	KindConfig
	KindCodec
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "<undefined>"
	case KindIO:
		return "IoError"
	case KindConfig:
		return "ConfigError"
	case KindCodec:
		return "CodecError"
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	default:
		return fmt.Sprintf("<unexpected_kind_%d>", int(k))
	}
}

type kindSentinel Kind

func (s kindSentinel) Error() string {
	return Kind(s).String()
}

// Sentinels to be matched with errors.Is.
var (
	ErrIO         error = kindSentinel(KindIO)
	ErrConfig     error = kindSentinel(KindConfig)
	ErrCodec      error = kindSentinel(KindCodec)
	ErrValidation error = kindSentinel(KindValidation)
	ErrNotFound   error = kindSentinel(KindNotFound)
)

type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Details are the libav warning/error log lines, oldest first.
	Details []string
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.String())
	if e.Op != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Op)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(describe(e.Err))
	}
	if len(e.Details) > 0 {
		buf.WriteString("\nDetails:")
		for _, line := range e.Details {
			buf.WriteString("\n")
			buf.WriteString(line)
		}
	}
	return buf.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	s, ok := target.(kindSentinel)
	return ok && Kind(s) == e.Kind
}

func describe(err error) string {
	var avErr astiav.Error
	if errors.As(err, &avErr) {
		return fmt.Sprintf("%v (code %d)", err, int(avErr))
	}
	return err.Error()
}

// Wrap returns an error of the given kind for a failed libav call, attaching
// (and draining) the captured libav log lines.
//
// If err already is an *Error it is returned as is, to keep the innermost kind.
func Wrap(kind Kind, err error, opFormat string, args ...any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{
		Kind:    kind,
		Op:      fmt.Sprintf(opFormat, args...),
		Err:     err,
		Details: avlog.Capture.Drain(),
	}
}

// New returns an error that did not come from libav (for example a failed
// validation of the input), so the captured log lines are left in place.
func New(kind Kind, format string, args ...any) error {
	return &Error{
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}

// NewWithDetails is like New, but also drains the captured libav log lines;
// it is used when libav reported a failure without returning an error code
// (e.g. returning a nil context).
func NewWithDetails(kind Kind, format string, args ...any) error {
	return &Error{
		Kind:    kind,
		Err:     fmt.Errorf(format, args...),
		Details: avlog.Capture.Drain(),
	}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUndefined
}
