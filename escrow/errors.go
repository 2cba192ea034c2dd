package escrow

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable escrow domain error code.
type ErrorCode string

const (
	// ErrorSeatExited indicates an operation on a seat that already exited.
	ErrorSeatExited ErrorCode = "0101"
	// ErrorOfferSafetyViolation indicates a proposed allocation is not offer safe.
	ErrorOfferSafetyViolation ErrorCode = "0102"
	// ErrorUnrecognizedStaging indicates a staging unknown to the instance.
	ErrorUnrecognizedStaging ErrorCode = "0103"
	// ErrorConservationViolation indicates a batch that creates or destroys value.
	ErrorConservationViolation ErrorCode = "0104"
	// ErrorBridgeSettlementFailure indicates a bridged offer that did not settle.
	ErrorBridgeSettlementFailure ErrorCode = "0105"
	// ErrorUnknownBrand indicates a brand with no registered amount math.
	ErrorUnknownBrand ErrorCode = "0106"
	// ErrorBrandMismatch indicates amounts of different brands were combined.
	ErrorBrandMismatch ErrorCode = "0107"
	// ErrorInsufficientAmount indicates a subtraction or withdrawal beyond the available amount.
	ErrorInsufficientAmount ErrorCode = "0108"
	// ErrorInvalidInput indicates a malformed argument.
	ErrorInvalidInput ErrorCode = "0109"
	// ErrorInvalidInvitation indicates an unknown or already redeemed invitation.
	ErrorInvalidInvitation ErrorCode = "0110"
	// ErrorOfferNotAccepted indicates an instance no longer accepting offers.
	ErrorOfferNotAccepted ErrorCode = "0111"
	// ErrorWantsNotSatisfied indicates a swap whose wants cannot be met.
	ErrorWantsNotSatisfied ErrorCode = "0112"
)

// DomainError represents a structured escrow domain error.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// Is reports whether target is a DomainError of the same code.
func (e DomainError) Is(target error) bool {
	var de DomainError
	if !errors.As(target, &de) {
		return false
	}

	return de.Code == e.Code
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

// Kind sentinels for errors.Is matching.
var (
	ErrSeatExited              = DomainError{Code: ErrorSeatExited, Message: "seat has been exited"}
	ErrOfferSafetyViolation    = DomainError{Code: ErrorOfferSafetyViolation, Message: "offer is not safe"}
	ErrUnrecognizedStaging     = DomainError{Code: ErrorUnrecognizedStaging, Message: "staging is not recognized"}
	ErrConservationViolation   = DomainError{Code: ErrorConservationViolation, Message: "rights are not conserved"}
	ErrBridgeSettlementFailure = DomainError{Code: ErrorBridgeSettlementFailure, Message: "bridged offer failed to settle"}
	ErrUnknownBrand            = DomainError{Code: ErrorUnknownBrand, Message: "brand is not registered"}
	ErrBrandMismatch           = DomainError{Code: ErrorBrandMismatch, Message: "amount brands differ"}
	ErrInsufficientAmount      = DomainError{Code: ErrorInsufficientAmount, Message: "amount is insufficient"}
	ErrInvalidInput            = DomainError{Code: ErrorInvalidInput, Message: "invalid input"}
	ErrInvalidInvitation       = DomainError{Code: ErrorInvalidInvitation, Message: "invitation is not valid"}
	ErrOfferNotAccepted        = DomainError{Code: ErrorOfferNotAccepted, Message: "instance is not accepting offers"}
	ErrWantsNotSatisfied       = DomainError{Code: ErrorWantsNotSatisfied, Message: "wants cannot be satisfied"}
)

// Infrastructure sentinels.
var (
	// ErrNilParentContext indicates that a nil parent context was provided.
	ErrNilParentContext = errors.New("cannot create context from nil parent")
	// ErrNilInstance indicates a nil instance was used.
	ErrNilInstance = errors.New("escrow instance is nil")
)

// SeatExited builds a SeatExited error naming the operation attempted.
func SeatExited(op string) error {
	return NewDomainError(ErrorSeatExited, op, "seat has been exited")
}

// OfferSafetyViolation builds an OfferSafetyViolation error for seat.
func OfferSafetyViolation(seat, detail string) error {
	return NewDomainError(ErrorOfferSafetyViolation, seat, "offer is not safe: "+detail)
}

// UnrecognizedStaging builds an UnrecognizedStaging error.
func UnrecognizedStaging(detail string) error {
	return NewDomainError(ErrorUnrecognizedStaging, "staging", detail)
}

// ConservationViolation builds a ConservationViolation error for brand.
func ConservationViolation(brand, detail string) error {
	return NewDomainError(ErrorConservationViolation, brand, "rights are not conserved: "+detail)
}

// BridgeSettlementFailure wraps the cause of a failed bridged offer.
func BridgeSettlementFailure(cause error) error {
	return fmt.Errorf("%w: %w", NewDomainError(ErrorBridgeSettlementFailure, "bridge", "bridged offer failed to settle"), cause)
}

// InvalidInput builds an InvalidInput error for field.
func InvalidInput(field, message string) error {
	return NewDomainError(ErrorInvalidInput, field, message)
}

// CodeOf returns the domain code carried by err, or empty when err is not a DomainError.
func CodeOf(err error) ErrorCode {
	var de DomainError
	if errors.As(err, &de) {
		return de.Code
	}

	return ""
}
