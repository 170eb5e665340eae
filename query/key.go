package query

import (
	"strings"
)

// Key identifies one logical collection, e.g. {"routes", "user_123"}.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

// With returns a copy of k extended by parts.
func (k Key) With(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// UserKey scopes base to one identity so collections of different users
// never share an entry. Without a user the base key is used as is.
func UserKey(base Key, userID string) Key {
	if userID == "" {
		return base.With()
	}
	return base.With(userID)
}
