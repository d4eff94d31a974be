package identity

import (
	"context"
	"regexp"
	"strings"
)

// SenderNameFallback is returned when no profile field yields a usable name.
// It is deliberately not a member of the placeholder token set, so applying
// the substitution twice cannot re-replace it.
const SenderNameFallback = "[sender]"

// Placeholder phrases callers and drafting agents leave in subjects and
// bodies. Matched case-insensitively.
var senderPlaceholders = []string{
	"{{sender_name}}",
	"{{sender name}}",
	"[sender name]",
	"[your name]",
	"[my name]",
}

var senderPlaceholderPattern = compilePlaceholderPattern()

func compilePlaceholderPattern() *regexp.Regexp {
	quoted := make([]string, len(senderPlaceholders))
	for i, p := range senderPlaceholders {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("(?i)(" + strings.Join(quoted, "|") + ")")
}

type Profile struct {
	Email       string
	FirstName   string
	LastName    string
	DisplayName string
}

type ProfileReader interface {
	Profile(ctx context.Context, userID string) (Profile, error)
}

// ResolveSenderName picks the best available display name for the user:
// stored display name, then first-and-last concatenation, then the local part
// of the account email, then SenderNameFallback.
func ResolveSenderName(ctx context.Context, profiles ProfileReader, userID string) string {
	prof, err := profiles.Profile(ctx, userID)
	if err != nil {
		return SenderNameFallback
	}

	if name := strings.TrimSpace(prof.DisplayName); name != "" {
		return name
	}

	full := strings.TrimSpace(strings.TrimSpace(prof.FirstName) + " " + strings.TrimSpace(prof.LastName))
	if full != "" {
		return full
	}

	if at := strings.Index(prof.Email, "@"); at > 0 {
		return prof.Email[:at]
	}

	return SenderNameFallback
}

// ApplySenderPlaceholder substitutes every placeholder occurrence with
// senderName. Idempotent: some callers assemble text in multiple passes and
// run the substitution each time.
func ApplySenderPlaceholder(text, senderName string) string {
	if text == "" {
		return text
	}
	return senderPlaceholderPattern.ReplaceAllLiteralString(text, senderName)
}
