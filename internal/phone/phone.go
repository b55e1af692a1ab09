package phone

import (
	"errors"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "UA"

var (
	ErrInvalidFormat = errors.New("phone number must be in format: 380505050505")

	formattedPattern = regexp.MustCompile(`^380\d{9}$`)
)

// Normalize turns revealed phone text such as "(050) 505 05 05" into "380505050505".
// Text that holds no parsable number yields "".
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return ""
	}

	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+")
}

// Validate checks a formatted number. An empty value means no phone was revealed
// and is accepted.
func Validate(formatted string) error {
	if formatted == "" {
		return nil
	}
	if !formattedPattern.MatchString(formatted) {
		return ErrInvalidFormat
	}
	return nil
}
