package delivery

import "time"

// Reason classifies how a delivery attempt ended.
type Reason string

const (
	ReasonDelivered     Reason = "delivered"
	ReasonNotConfigured Reason = "not_configured"
	ReasonEncode        Reason = "encode"
	ReasonTransport     Reason = "transport"
	ReasonTimeout       Reason = "timeout"
	ReasonHTTPStatus    Reason = "http_status"
	ReasonStorage       Reason = "storage"
)

// Outcome is the result of one delivery attempt. Failures are values, not errors:
// Deliver never returns an error to its caller.
type Outcome struct {
	Delivered  bool
	Reason     Reason
	StatusCode int
	Err        error
	Duration   time.Duration
}

// OK reports whether the endpoint accepted the payload and the flag update committed.
func (o Outcome) OK() bool {
	return o.Delivered
}

// Accepted reports whether the endpoint took the payload even though the attempt failed
// afterwards. Retrying such an outcome must not post again.
func (o Outcome) Accepted() bool {
	return o.Reason == ReasonStorage && o.StatusCode >= 200 && o.StatusCode < 300
}

// Retriable reports whether another attempt could succeed without operator action.
func (o Outcome) Retriable() bool {
	switch o.Reason {
	case ReasonTransport, ReasonTimeout, ReasonStorage:
		return true
	case ReasonHTTPStatus:
		return o.StatusCode >= 500 || o.StatusCode == 408 || o.StatusCode == 429
	default:
		return false
	}
}

func failed(reason Reason, err error) Outcome {
	return Outcome{Reason: reason, Err: err}
}
