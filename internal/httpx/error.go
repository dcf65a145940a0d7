package httpx

import (
	"fmt"
	"net/http"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
)

// HTTPError is a non-2xx response. Code holds the first Data API message code
// when the body is an envelope and -1 otherwise.
type HTTPError struct {
	StatusCode int
	Code       int
	Body       []byte
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Code >= 0 {
		return fmt.Sprintf("http error: status=%d code=%d", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("http error: status=%d body=%s", e.StatusCode, string(e.Body))
}

// Retryable reports whether the error should be considered transient.
func (e *HTTPError) Retryable() bool {
	if e == nil {
		return false
	}
	return Transient(&http.Response{StatusCode: e.StatusCode}, nil)
}

func envelopeCode(body []byte) int {
	env, err := fmapi.Decode(body)
	if err != nil {
		return -1
	}
	return env.Code()
}
