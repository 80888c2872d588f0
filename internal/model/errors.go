package model

// Error is a domain error with a stable machine-readable code so calling
// systems can branch on the kind rather than parse message text.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// Sentinel domain errors. Compared with errors.Is; repositories wrap storage
// failures separately so these always identify a business outcome.
var (
	ErrNotFound                = &Error{Code: "not_found", Message: "not found"}
	ErrAlreadyRegistered       = &Error{Code: "already_registered", Message: "an active registration already exists for this user and event"}
	ErrInvalidQuantity         = &Error{Code: "invalid_quantity", Message: "quantity must be at least 1"}
	ErrEventNotAdmitting       = &Error{Code: "event_not_admitting", Message: "event is not accepting registrations"}
	ErrEventFull               = &Error{Code: "event_full", Message: "event is fully booked"}
	ErrRegistrationNotEligible = &Error{Code: "registration_not_eligible", Message: "registration is not eligible for this operation"}
	ErrAlreadyCancelled        = &Error{Code: "already_cancelled", Message: "registration is already cancelled"}
	ErrAlreadyUsed             = &Error{Code: "already_used", Message: "ticket has already been used"}
	ErrTicketExpired           = &Error{Code: "expired", Message: "ticket code has expired"}
	ErrTicketCancelled         = &Error{Code: "cancelled", Message: "ticket has been cancelled"}
	ErrTransientConflict       = &Error{Code: "transient_conflict", Message: "concurrent update conflict, retry the request"}

	// ErrCodeCollision signals a ticket-code uniqueness violation. It never
	// reaches callers: issuance regenerates codes and retries.
	ErrCodeCollision = &Error{Code: "code_collision", Message: "ticket code collision"}
)
