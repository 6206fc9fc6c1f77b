package auth

import (
	"time"
	"unicode"
)

// adultAge is the minimum account-holder age enforced at registration and on
// birthdate updates.
const adultAge = 18

// ValidPassword reports whether pw satisfies the password policy: at least
// seven characters containing a lowercase letter, an uppercase letter, a
// digit, and a symbol.
func ValidPassword(pw string) bool {
	if len(pw) < 7 {
		return false
	}

	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	return lower && upper && digit && symbol
}

// IsAdult reports whether someone born on birthdate has turned 18 by now.
func IsAdult(birthdate, now time.Time) bool {
	years := now.Year() - birthdate.Year()
	if now.Month() < birthdate.Month() || (now.Month() == birthdate.Month() && now.Day() < birthdate.Day()) {
		years--
	}
	return years >= adultAge
}
