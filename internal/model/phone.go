package model

import (
	"errors"
	"regexp"
	"strings"
)

var ghanaPhone = regexp.MustCompile(`^233\d{9}$`)

var ErrInvalidPhone = errors.New("invalid Ghana phone number, expected 233XXXXXXXXX")

// NormalizePhone converts the accepted input spellings (0XXXXXXXXX,
// +233XXXXXXXXX, 233XXXXXXXXX, with optional spaces/dashes/parens) to the
// single international format stored and sent to the mobile-money processor.
func NormalizePhone(phone string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')':
			return -1
		}
		return r
	}, phone)

	cleaned = strings.TrimPrefix(cleaned, "+")
	if strings.HasPrefix(cleaned, "0") && len(cleaned) == 10 {
		cleaned = "233" + cleaned[1:]
	}
	if !ghanaPhone.MatchString(cleaned) {
		return "", ErrInvalidPhone
	}
	return cleaned, nil
}
