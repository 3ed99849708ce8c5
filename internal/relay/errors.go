package relay

import "errors"

var (
	ErrRoomNotFound     = errors.New("room does not exist")
	ErrIdentityMissing  = errors.New("identity not registered")
	ErrUnauthorized     = errors.New("not authorized")
	ErrMessageNotFound  = errors.New("message does not exist")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrSessionClosed    = errors.New("session closed")
	ErrIdentityConflict = errors.New("session already bound to another identity")

	// ErrDeliveryFailed is reported by Session.Deliver when the outbound
	// buffer is full. The relay only logs it.
	ErrDeliveryFailed = errors.New("delivery failed")
)
