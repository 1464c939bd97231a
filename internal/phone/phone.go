package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidNumber is returned when a value cannot be normalised into a
// Bangladeshi mobile number.
var ErrInvalidNumber = errors.New("invalid phone number")

var (
	nonDigitPattern = regexp.MustCompile(`[^0-9]`)
	mobilePattern   = regexp.MustCompile(`^8801[3-9][0-9]{8}$`)
)

const canonicalHead = "880"

// InvalidNumberError carries the caller's original input for a rejected number.
type InvalidNumberError struct {
	Raw string
}

func (e *InvalidNumberError) Error() string {
	return fmt.Sprintf("phone: invalid number %q", e.Raw)
}

// Is reports whether target is ErrInvalidNumber.
func (e *InvalidNumberError) Is(target error) bool {
	return target == ErrInvalidNumber
}

// Normalize converts a free-form number into the 13 digit 8801XXXXXXXXX form.
// Formatting characters and a leading country or trunk prefix are accepted.
// A partially typed country code ("8" or "88") is stripped along with it.
func Normalize(raw string) (string, error) {
	digits := nonDigitPattern.ReplaceAllString(raw, "")
	digits = strings.TrimLeft(digits, "8")
	digits = strings.TrimPrefix(digits, "0")

	canonical := canonicalHead + digits
	if !mobilePattern.MatchString(canonical) {
		return "", &InvalidNumberError{Raw: raw}
	}
	return canonical, nil
}

// NormalizeAll normalises every value, failing on the first rejection without
// returning a partial list.
func NormalizeAll(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(values))
	for _, value := range values {
		normalized, err := Normalize(value)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized)
	}
	return out, nil
}

// Valid reports whether value is already in canonical form.
func Valid(value string) bool {
	return mobilePattern.MatchString(value)
}
