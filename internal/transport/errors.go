package transport

import "fmt"

// TransportError reports a failed or timed-out connection attempt against a
// single candidate endpoint. Retry policy lives in the sync engine, never
// here.
type TransportError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %s: %v", e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("transport %s: %s", e.Endpoint, e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CapabilityViolation reports that a channel silently negotiated an unsafe
// transport mode. The channel is torn down immediately and the attempt is
// treated as a TransportError.
type CapabilityViolation struct {
	Endpoint string
	Mode     string
}

func (e *CapabilityViolation) Error() string {
	return fmt.Sprintf("transport %s: channel negotiated forbidden mode %q", e.Endpoint, e.Mode)
}
