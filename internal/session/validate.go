package session

import (
	"errors"
	"fmt"
	"regexp"
)

// Session names become directory names under ~/.chatsync, so the rules are
// strict: lowercase letters, digits, dash, underscore, at most 64 chars.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name can be used as a chatsync session name.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("session name is empty")
	}
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("session name %q: use lowercase letters, digits, - or _ (max 64 chars)", name)
	}
	return nil
}
