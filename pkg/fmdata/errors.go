package fmdata

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
)

var (
	// ErrInvalidState is returned when an operation does not apply to the
	// record's lifecycle state (e.g. Get on an unsaved record).
	ErrInvalidState = errors.New("fmdata: invalid record state")
	// ErrInvalidArgument signals a client-side precondition violation.
	ErrInvalidArgument = errors.New("fmdata: invalid argument")
	// ErrTypeMismatch is returned when a value does not fit a field's kind.
	ErrTypeMismatch = errors.New("fmdata: type mismatch")
	// ErrInvalidFieldKind is returned for operations the field kind does not support.
	ErrInvalidFieldKind = errors.New("fmdata: invalid field kind")
	// ErrAlreadyAuthenticated is returned by Login while a token is held.
	ErrAlreadyAuthenticated = errors.New("fmdata: session already authenticated")
	// ErrNotAuthenticated is returned by Logout without a token.
	ErrNotAuthenticated = errors.New("fmdata: session not authenticated")
	// ErrNoRecordsMatch is returned by Find when the server reports that no
	// record satisfies the request.
	ErrNoRecordsMatch = errors.New("fmdata: no records match the request")
	// ErrRefreshFailed is returned by Commit when the write succeeded but the
	// read that assigns ids to new portal rows did not. The record is saved;
	// a later Get completes the refresh.
	ErrRefreshFailed = errors.New("fmdata: record saved but refresh failed")
)

// RemoteError is a non-zero message code reported by the server.
type RemoteError struct {
	Code          int
	HTTPStatus    int
	Message       string
	ServerMessage string
	Body          []byte
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("fmdata: remote error %d: %s (http status %d)", e.Code, e.Message, e.HTTPStatus)
}

// ScriptError reports a script phase that failed inside an otherwise
// successful response. The record mutation of the same request may already
// have been applied.
type ScriptError struct {
	Phase  string
	Code   string
	Result string
	// RecordID is the identifier the server reported alongside the failure, or
	// -1 when the response carried none.
	RecordID int
}

func (e *ScriptError) Error() string {
	if e == nil {
		return "<nil>"
	}
	phase := e.Phase
	if phase == "" {
		phase = "script"
	}
	return fmt.Sprintf("fmdata: %s failed with script error %s", phase, e.Code)
}

// newRemoteError builds a RemoteError from a response body. The returned error
// carries the stack of the calling goroutine, printable with "%+v".
func newRemoteError(status int, body []byte) error {
	env, err := fmapi.Decode(body)
	if err != nil {
		return pkgerrors.WithStack(&RemoteError{
			Code:       -1,
			HTTPStatus: status,
			Message:    http.StatusText(status),
			Body:       body,
		})
	}
	code := env.Code()
	return pkgerrors.WithStack(&RemoteError{
		Code:          code,
		HTTPStatus:    status,
		Message:       fmapi.Describe(code),
		ServerMessage: env.Text(),
		Body:          body,
	})
}

// RemoteCode returns the message code carried by err, or -1 when err is not a
// RemoteError.
func RemoteCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	return -1
}

func isInvalidToken(err error) bool {
	return RemoteCode(err) == fmapi.CodeInvalidToken
}

func invalidState(op string, st State) error {
	return pkgerrors.WithStack(fmt.Errorf("%w: cannot %s a %s record", ErrInvalidState, op, st))
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
