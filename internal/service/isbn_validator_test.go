package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"library/internal/errors"
)

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		valid bool
	}{
		{"isbn13", "9780441478125", "9780441478125", true},
		{"isbn13 with hyphens", "978-0-441-47812-5", "9780441478125", true},
		{"isbn10", "0441478123", "0441478123", true},
		{"isbn10 with X check digit", "0-8044-2957-x", "080442957X", true},
		{"isbn13 bad check digit", "9780441478126", "", false},
		{"isbn10 bad check digit", "0441478124", "", false},
		{"X not in last place", "04414X8123", "", false},
		{"letters", "97804414781AB", "", false},
		{"wrong length", "12345", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeISBN(tt.input)
			if !tt.valid {
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
