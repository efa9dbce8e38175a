package pubengine

import "fmt"

// StatusCode is an OPC UA wire status code. It is always the value reported
// to clients; internal diagnostics additionally render it through NewError
// for log lines, never the other way around.
type StatusCode uint32

// Status codes surfaced by the publish engine (§6, §7).
const (
	Good StatusCode = 0x00000000

	BadNoSubscription         StatusCode = 0x80790000
	BadTooManyPublishRequests StatusCode = 0x80670000
	BadTimeout                StatusCode = 0x800A0000
	BadSequenceNumberUnknown  StatusCode = 0x80D50000
	BadSubscriptionIDInvalid  StatusCode = 0x80280000
	BadSessionClosed          StatusCode = 0x80200000

	// statusPending is never returned on the wire. It marks a Results slot
	// that Subscription.buildResultsLocked could not resolve on its own because
	// the acknowledgement targets a different subscription; the engine
	// fills it in once it can see the whole subscription registry.
	statusPending StatusCode = 0xFFFFFFFF
)

func (code StatusCode) String() string {
	switch code {
	case Good:
		return "Good"
	case BadNoSubscription:
		return "BadNoSubscription"
	case BadTooManyPublishRequests:
		return "BadTooManyPublishRequests"
	case BadTimeout:
		return "BadTimeout"
	case BadSequenceNumberUnknown:
		return "BadSequenceNumberUnknown"
	case BadSubscriptionIDInvalid:
		return "BadSubscriptionIDInvalid"
	case BadSessionClosed:
		return "BadSessionClosed"
	default:
		return "UnknownStatusCode"
	}
}

// IsGood reports whether the status code represents success.
func (code StatusCode) IsGood() bool { return code == Good }

// NewError renders a StatusCode as a Go error for internal diagnostics and
// logging only. It must never be used to decide what goes on the wire.
func NewError(code StatusCode, detail ...interface{}) error {
	if len(detail) > 0 {
		return fmt.Errorf("%s: %v", code, detail[0])
	}
	return fmt.Errorf("%s", code)
}
