package password

import (
	"strings"
	"unicode"
)

// Strength is the coarse score reported alongside validation.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthMedium Strength = "medium"
	StrengthStrong Strength = "strong"
)

const (
	minLength = 8
	maxLength = 128

	// specialChars is the explicit set counted as special; spaces and
	// control characters do not qualify.
	specialChars = "!@#$%^&*()_+-=[]{}|;:'\",.<>?/~`\\"
)

// commonPasswords are rejected outright regardless of composition.
var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"letmein1":    {},
	"welcome1":    {},
	"admin123":    {},
	"iloveyou":    {},
	"sunshine1":   {},
	"monkey123":   {},
	"dragon123":   {},
}

// Policy validates candidate passwords against the platform's composition
// rules. The zero value is ready to use.
type Policy struct{}

// Validate returns every rule the candidate violates, in a stable order.
// An empty slice means the password is acceptable.
func (Policy) Validate(candidate string) []string {
	var violations []string

	if len(candidate) < minLength {
		violations = append(violations, "password must be at least 8 characters long")
	}
	if len(candidate) > maxLength {
		violations = append(violations, "password must be at most 128 characters long")
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		violations = append(violations, "password must contain an uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "password must contain a lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "password must contain a digit")
	}
	if !hasSpecial {
		violations = append(violations, "password must contain a special character")
	}

	if _, ok := commonPasswords[strings.ToLower(candidate)]; ok {
		violations = append(violations, "password is too common")
	}
	if hasSequentialRun(candidate, 3) {
		violations = append(violations, "password must not contain sequential characters")
	}
	if hasRepeatRun(candidate, 3) {
		violations = append(violations, "password must not repeat the same character three or more times")
	}

	return violations
}

// Score rates an already-valid password. Length past 12 plus full character
// class coverage scores strong.
func (Policy) Score(candidate string) Strength {
	classes := 0
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}
	for _, set := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if set {
			classes++
		}
	}

	switch {
	case len(candidate) >= 12 && classes == 4:
		return StrengthStrong
	case len(candidate) >= 10 && classes >= 3:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// hasSequentialRun reports an ascending run of length n in ASCII code
// points, e.g. "abc" or "789". Descending runs are allowed.
func hasSequentialRun(s string, n int) bool {
	if len(s) < n {
		return false
	}
	lower := strings.ToLower(s)
	run := 1
	for i := 1; i < len(lower); i++ {
		if lower[i] == lower[i-1]+1 {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}

func hasRepeatRun(s string, n int) bool {
	run := 1
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
