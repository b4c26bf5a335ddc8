package mesh

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable error taxonomy shared by every RadioMesh subsystem
// (spec.md §7). Callers should compare by Kind, not by matching error text.
type ErrorKind string

const (
	ErrOK ErrorKind = "OK"

	// Input errors.
	ErrInvalidParam       ErrorKind = "INVALID_PARAM"
	ErrInvalidLength      ErrorKind = "INVALID_LENGTH"
	ErrPacketTooLong      ErrorKind = "PACKET_TOO_LONG"
	ErrUnsupportedVersion ErrorKind = "UNSUPPORTED_VERSION"
	ErrMaxHops            ErrorKind = "MAX_HOPS"

	// Packet integrity errors.
	ErrCorrupted ErrorKind = "CORRUPTED"
	ErrMICFail   ErrorKind = "MIC_FAIL"
	ErrMalformed ErrorKind = "MALFORMED"

	// Crypto errors.
	ErrCryptoSetup     ErrorKind = "CRYPTO_SETUP"
	ErrMissingKey      ErrorKind = "MISSING_KEY"
	ErrECDHFailed      ErrorKind = "ECDH_FAILED"
	ErrInvalidKeyLen   ErrorKind = "INVALID_KEY_LENGTH"
	ErrCiphertextShort ErrorKind = "CIPHERTEXT_TOO_SHORT"

	// Radio errors.
	ErrRadioNotReady   ErrorKind = "RADIO_NOT_READY"
	ErrRadioTXTimeout  ErrorKind = "RADIO_TX_TIMEOUT"
	ErrRadioRXTimeout  ErrorKind = "RADIO_RX_TIMEOUT"
	ErrRadioFailure    ErrorKind = "RADIO_FAILURE"

	// State errors.
	ErrInvalidState       ErrorKind = "INVALID_STATE"
	ErrDeviceNotIncluded  ErrorKind = "DEVICE_NOT_INCLUDED"
	ErrInclusionFailed    ErrorKind = "INCLUSION_FAILED"
	ErrInclusionTimeout   ErrorKind = "INCLUSION_TIMEOUT"

	// Storage errors.
	ErrStorageNotInit    ErrorKind = "STORAGE_NOT_INIT"
	ErrStorageKeyMissing ErrorKind = "STORAGE_KEY_NOT_FOUND"
	ErrStorageRead       ErrorKind = "STORAGE_READ_FAILED"
	ErrStorageWrite      ErrorKind = "STORAGE_WRITE_FAILED"
	ErrStorageFull       ErrorKind = "STORAGE_FULL"
	ErrStorageInvalid    ErrorKind = "STORAGE_INVALID_SIZE"
)

// Error is a RadioMesh error carrying a stable Kind alongside the underlying
// cause, so callers can both errors.Is/As against the wrapped error and
// switch on Kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mesh: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("mesh: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error for op/kind, optionally wrapping a cause.
func NewError(op string, kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, if it is (or wraps) a *Error.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return ErrOK, false
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}
