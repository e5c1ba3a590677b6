package rules

import (
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2s"
)

// Fingerprint identifies a rule list by content and order, it changes with any edit.
func Fingerprint(lines []string) string {
	hash := blake2s.Sum256([]byte(strings.Join(lines, "\n")))
	return base58.Encode(hash[:])
}
