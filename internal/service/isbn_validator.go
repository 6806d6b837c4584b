package service

import (
	"fmt"
	"strings"

	"library/internal/errors"
)

// NormalizeISBN strips separators from an ISBN-10 or ISBN-13 and verifies
// its check digit. The returned form has no hyphens or spaces.
func NormalizeISBN(isbn string) (string, error) {
	isbn = strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(isbn)))

	var ok bool
	switch len(isbn) {
	case 10:
		ok = validateISBN10(isbn)
	case 13:
		ok = validateISBN13(isbn)
	}
	if !ok {
		return "", fmt.Errorf("%w: invalid ISBN %q", errors.ErrValidation, isbn)
	}
	return isbn, nil
}

// validateISBN10 checks the mod 11 weighted sum. The last digit may be X (10).
func validateISBN10(isbn string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		c := isbn[i]
		var digit int
		switch {
		case c >= '0' && c <= '9':
			digit = int(c - '0')
		case c == 'X' && i == 9:
			digit = 10
		default:
			return false
		}
		sum += digit * (10 - i)
	}
	return sum%11 == 0
}

// validateISBN13 checks the alternating 1/3 weighted sum, processed from left to right.
func validateISBN13(isbn string) bool {
	sum := 0
	for i := 0; i < 13; i++ {
		c := isbn[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}
	return sum%10 == 0
}
