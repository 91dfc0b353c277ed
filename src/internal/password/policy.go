package password

import (
	"fmt"
	"strings"
	"unicode"
)

// Policy is the set of rules a password must satisfy.
type Policy struct {
	MinLength           int
	MaxLength           int
	RequireUppercase    bool
	RequireLowercase    bool
	RequireNumbers      bool
	RequireSpecialChars bool
	ForbiddenPrefixes   []string
}

// DefaultPolicy mirrors the registration form requirements.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:           8,
		MaxLength:           128,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
		ForbiddenPrefixes:   []string{"123", "abc", "qwe", "password", "admin"},
	}
}

const specialChars = `!@#$%^&*(),.?":{}|<>`

// Validate returns every violated rule as a human-readable message, in rule
// order. An empty slice means the password is acceptable. Pure function, no
// error return: the violations are the result.
func Validate(password string, policy Policy) []string {
	var violations []string

	if len(password) < policy.MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters long", policy.MinLength))
	}

	if len(password) > policy.MaxLength {
		violations = append(violations, fmt.Sprintf("Password must not exceed %d characters", policy.MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
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

	if policy.RequireUppercase && !hasUpper {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if policy.RequireLowercase && !hasLower {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if policy.RequireNumbers && !hasDigit {
		violations = append(violations, "Password must contain at least one number")
	}
	if policy.RequireSpecialChars && !hasSpecial {
		violations = append(violations, "Password must contain at least one special character")
	}

	if hasRepeatedRun(password, 3) {
		violations = append(violations, "Password must not contain repeating characters (3 or more times)")
	}

	lowered := strings.ToLower(password)
	for _, prefix := range policy.ForbiddenPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			violations = append(violations, "Password contains common patterns")
			break
		}
	}

	return violations
}

// RequirementsMessage describes the default policy for registration forms.
func RequirementsMessage() string {
	p := DefaultPolicy()
	return fmt.Sprintf("Password must be %d-%d characters long, contain uppercase and lowercase letters, "+
		"at least one number and one special character, and must not contain common patterns or repeating characters",
		p.MinLength, p.MaxLength)
}

func hasRepeatedRun(s string, n int) bool {
	run := 0
	var prev rune
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}
