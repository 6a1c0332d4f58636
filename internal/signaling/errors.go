package signaling

import "fmt"

// Transport error codes, surfaced to the user after bounded retries.
const (
	CodeConnectTimeout  = "SIGNALING_CONNECT_TIMEOUT"
	CodeConnectFailed   = "SIGNALING_CONNECT_FAILED"
	CodeReconnectFailed = "SIGNALING_RECONNECT_FAILED"
)

// TransportError wraps a connection failure with its wire code.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
