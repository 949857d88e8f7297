package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrBufferExhausted = errors.New("Encoding buffer exhausted")
	ErrNameTooLong     = errors.New("Event name exceeds the maximum length")
	ErrPayloadTooLong  = errors.New("Event payload exceeds the maximum length")
	ErrHeaderTooShort  = errors.New("Header is malformed, it appears to be too short")

	// ErrProtocolViolation is wrapped by every error the Assembler returns.
	ErrProtocolViolation = errors.New("Protocol violation")

	ErrUnexpectedControl = fmt.Errorf("%w: unexpected control byte", ErrProtocolViolation)
	ErrExpectedSTX       = fmt.Errorf("%w: expected STX after header", ErrProtocolViolation)
	ErrNameOverflow      = fmt.Errorf("%w: event name too long", ErrProtocolViolation)
	ErrPayloadOverflow   = fmt.Errorf("%w: event payload too long", ErrProtocolViolation)
)
