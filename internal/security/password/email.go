package password

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-z]{2,}$`)

// ValidEmail valida el formato de un username tipo email.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) <= 254 && emailRe.MatchString(s)
}

// NormalizeUsername: trim + lowercase. Los usernames se comparan sin
// distinguir mayúsculas.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
