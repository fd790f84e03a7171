// Package userutil derives per-user names for OS objects such as pipes and
// mutexes.
package userutil

import (
	"os"
	"os/user"
	"regexp"
	"strings"
)

var invalidUsernameRune = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeUsername normalizes username-like values used in pipe/mutex names.
func SanitizeUsername(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return invalidUsernameRune.ReplaceAllString(value, "_")
}

// currentUser is replaced in tests.
var currentUser = user.Current

// ObjectSuffix returns the sanitized name of the current user. USERNAME wins
// over the account lookup so a roaming profile keeps a stable name.
func ObjectSuffix() string {
	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := currentUser(); err == nil {
			username = current.Username
		}
	}
	return SanitizeUsername(username)
}
