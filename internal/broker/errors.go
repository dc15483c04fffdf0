package broker

import "errors"

// Error classes the broker returns. Handlers and API adapters switch on
// these via errors.Is to decide propagation / user-visible behavior.
var (
	ErrInvalidInput      = errors.New("broker: invalid input")
	ErrConflict          = errors.New("broker: conflict")
	ErrNotFound          = errors.New("broker: not found")
	ErrBrokerUnavailable = errors.New("broker: unavailable")
	ErrHandlerError      = errors.New("broker: handler error")
	ErrHandlerTimeout    = errors.New("broker: handler timeout")
	ErrUnknownTask       = errors.New("broker: unknown task type")
)
