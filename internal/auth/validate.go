package auth

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/tonimelisma/cloudvault/internal/api"
)

// Registration rules enforced client-side.
const (
	minUsernameLength = 3
	minPasswordLength = 6
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func validateLogin(identifier, password string) error {
	var v ValidationError

	if strings.TrimSpace(identifier) == "" {
		v.add("identifier", "Email or username is required")
	}

	if password == "" {
		v.add("password", "Password is required")
	}

	return v.orNil()
}

func validateRegistration(req api.RegisterRequest) error {
	var v ValidationError

	switch username := strings.TrimSpace(req.Username); {
	case username == "":
		v.add("username", "Username is required")
	case len(username) < minUsernameLength:
		v.add("username", "Username must be at least 3 characters")
	case !usernamePattern.MatchString(username):
		v.add("username", "Username can only contain letters, numbers, underscores, and hyphens")
	}

	switch email := strings.TrimSpace(req.Email); {
	case email == "":
		v.add("email", "Email is required")
	case !emailPattern.MatchString(email):
		v.add("email", "Please enter a valid email address")
	}

	switch {
	case req.Password == "":
		v.add("password", "Password is required")
	case len(req.Password) < minPasswordLength:
		v.add("password", "Password must be at least 6 characters")
	case !hasMixedCharacters(req.Password):
		v.add("password", "Password must contain at least one uppercase letter, one lowercase letter, and one number")
	}

	switch {
	case req.ConfirmPassword == "":
		v.add("confirmPassword", "Please confirm your password")
	case req.ConfirmPassword != req.Password:
		v.add("confirmPassword", "Passwords do not match")
	}

	return v.orNil()
}

// hasMixedCharacters reports whether s has a lowercase letter, an uppercase
// letter, and a digit.
func hasMixedCharacters(s string) bool {
	var lower, upper, digit bool

	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	return lower && upper && digit
}
