package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Local format with brackets", "(050) 505 05 05", "380505050505"},
		{"Local digits", "0505050505", "380505050505"},
		{"International", "+380 67 123 45 67", "380671234567"},
		{"Surrounding whitespace", "  (067) 123-45-67 \n", "380671234567"},
		{"Error sentinel", "error", ""},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("380505050505"))
	assert.NoError(t, Validate(""))
	assert.ErrorIs(t, Validate("38050505050"), ErrInvalidFormat)
	assert.ErrorIs(t, Validate("480505050505"), ErrInvalidFormat)
	assert.ErrorIs(t, Validate("3805050505051"), ErrInvalidFormat)
}
