package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrMethodNotAllowed = "E_METHOD_NOT_ALLOWED"

	// Simulation state.
	ErrCapacityExhausted = "E_CAPACITY_EXHAUSTED"
	ErrNotInitialized    = "E_NOT_INITIALIZED"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrMethodNotAllowed:  {},
	ErrCapacityExhausted: {},
	ErrNotInitialized:    {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
