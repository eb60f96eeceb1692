package device

// Outcome tags a Reply.
type Outcome int

const (
	// OutcomeReady means the device answered with data.
	OutcomeReady Outcome = iota
	// OutcomePending means the device accepted the request but has no data yet.
	OutcomePending
	// OutcomeFailed means the call failed; Reply.Err says why.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomePending:
		return "pending"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reply is the result of a polled device call: Ready(data), Pending or Failed(err).
// Pollers switch on Outcome instead of inspecting HTTP status codes.
type Reply[T any] struct {
	Outcome Outcome
	Data    T
	Err     error
}

// Ready wraps data returned by the device.
func Ready[T any](data T) Reply[T] {
	return Reply[T]{Outcome: OutcomeReady, Data: data}
}

// Pending reports that the device has not finished yet.
func Pending[T any]() Reply[T] {
	return Reply[T]{Outcome: OutcomePending}
}

// Failed wraps an error. A nil error is replaced so Failed replies always carry one.
func Failed[T any](err error) Reply[T] {
	if err == nil {
		err = &DeviceError{Type: ErrTypeUnknown, Message: "call failed without an error"}
	}
	return Reply[T]{Outcome: OutcomeFailed, Err: err}
}
