package restr

import "crypto/subtle"

// Wildcard is the user pattern matching every user, including the empty one.
const Wildcard = "%"

type User struct {
	name string
}

func ParseUser(s string) User {
	return User{s}
}

func (r User) IsWildcard() bool {
	return r.name == Wildcard
}

// IsAllowed is an exact, case sensitive, constant time comparison unless r is the wildcard.
func (r User) IsAllowed(s string) bool {
	if r.IsWildcard() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(r.name), []byte(s)) == 1
}

func (r User) String() string {
	return r.name
}
