package entities

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidTransition  = errors.New("invalid contact status transition")
	ErrSessionUnavailable = errors.New("device session unavailable")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrDeviceTaken        = errors.New("device id is bound to another user")

	// ErrPrecondition wraps every campaign start rejection.
	ErrPrecondition = errors.New("precondition failed")

	ErrTemplateMissing    = fmt.Errorf("%w: campaign has no template", ErrPrecondition)
	ErrDeviceDisconnected = fmt.Errorf("%w: device is not connected", ErrPrecondition)
	ErrQueueEmpty         = fmt.Errorf("%w: campaign has no contacts", ErrPrecondition)
	ErrDeviceBusy         = fmt.Errorf("%w: another campaign is running on this device", ErrPrecondition)
	ErrQuotaExceeded      = fmt.Errorf("%w: daily campaign message limit reached", ErrPrecondition)
	ErrInvalidState       = fmt.Errorf("%w: campaign status does not allow this action", ErrPrecondition)
)
