package identity

import (
	"regexp"
	"strings"
)

// Syntactic shape only; deliverability is never checked here.
var emailPattern = regexp.MustCompile(`^[^\s@<>]+@[^\s@<>]+\.[^\s@<>]+$`)

// NormalizeEmail strips a "Display Name <addr>" wrapper, trims whitespace and
// lowercases the address. It does not validate the result.
func NormalizeEmail(raw string) string {
	addr := strings.TrimSpace(raw)

	if open := strings.LastIndex(addr, "<"); open != -1 {
		if close := strings.Index(addr[open:], ">"); close != -1 {
			addr = addr[open+1 : open+close]
		}
	}

	return strings.ToLower(strings.TrimSpace(addr))
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeRecipients canonicalizes each address and drops duplicates while
// keeping first-seen order. The second return lists addresses that failed
// syntax validation, already normalized.
func NormalizeRecipients(raw []string) ([]string, []string) {
	var valid, invalid []string
	seen := make(map[string]bool, len(raw))

	for _, r := range raw {
		addr := NormalizeEmail(r)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		if IsValidEmail(addr) {
			valid = append(valid, addr)
		} else {
			invalid = append(invalid, addr)
		}
	}
	return valid, invalid
}
