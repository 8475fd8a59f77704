package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the request completed successfully.
	StatusSuccess Status = 0

	// StatusError indicates the handler returned an error.
	// The Error payload carries detail.
	StatusError Status = 1

	// StatusUnhandled indicates no handler was registered for the kind.
	StatusUnhandled Status = 2

	// StatusNotAuthorized indicates the connection is not authenticated
	// for the requested kind.
	StatusNotAuthorized Status = 3

	// StatusInvalidPayload indicates the payload failed schema validation
	// on the responding side.
	StatusInvalidPayload Status = 4

	// StatusBusy indicates the peer cannot service the request right now.
	StatusBusy Status = 5
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusError:
		return "ERROR"
	case StatusUnhandled:
		return "UNHANDLED"
	case StatusNotAuthorized:
		return "NOT_AUTHORIZED"
	case StatusInvalidPayload:
		return "INVALID_PAYLOAD"
	case StatusBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
