// Package nipsa tracks shadow-banned ("not in public site areas") users and
// marks presented annotations that must stay out of public listings.
package nipsa

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidUserID = errors.New("invalid userid")

var userIDPattern = regexp.MustCompile(`^acct:([^@]+)@(.+)$`)

// UserIDFromUsername builds the full "acct:<username>@<authority>" id.
func UserIDFromUsername(username, authority string) string {
	return "acct:" + username + "@" + authority
}

// SplitUser returns the username and authority of a full user id.
func SplitUser(userID string) (username, authority string, err error) {
	match := userIDPattern.FindStringSubmatch(strings.TrimSpace(userID))
	if match == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return match[1], match[2], nil
}

// NormalizeUserID accepts a full user id or a bare username, which is
// qualified with authority.
func NormalizeUserID(input, authority string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if strings.HasPrefix(input, "acct:") {
		if _, _, err := SplitUser(input); err != nil {
			return "", err
		}
		return input, nil
	}
	if strings.ContainsAny(input, "@: ") || authority == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, input)
	}
	return UserIDFromUsername(input, authority), nil
}
