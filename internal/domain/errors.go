package domain

import "errors"

// Error taxonomy shared by every calculator. Callers match with errors.Is;
// calculators wrap these with context using fmt.Errorf("...: %w", ...).
// None of them are transient, so retrying never helps.
var (
	// ErrInvalidInput reports malformed or out-of-domain input such as a
	// non-positive price or misaligned series.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData reports too few observations for a meaningful
	// result.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrConstraintViolation reports a weight constraint that cannot be
	// satisfied, e.g. n*min_weight > 1.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrCalculation reports a numerically degenerate case such as a zero
	// variance denominator.
	ErrCalculation = errors.New("calculation error")
)
