package rules

import (
	"fmt"

	"github.com/hostacl/hostacl/restr"
)

const (
	ShortcutAll       = "all"
	ShortcutLocalhost = "localhost"
	ShortcutLocalnetA = "localnetA"
	ShortcutLocalnetB = "localnetB"
	ShortcutLocalnetC = "localnetC"
)

var localnets = map[string]int{
	ShortcutLocalnetA: 8,
	ShortcutLocalnetB: 16,
	ShortcutLocalnetC: 24,
}

// Shortcuts maps symbolic names to raw patterns. The localnet names exist only when the
// server address is known.
type Shortcuts map[string]string

func NewShortcuts(serverAddr string) Shortcuts {
	s := Shortcuts{
		ShortcutAll:       "0.0.0.0/0",
		ShortcutLocalhost: "127.0.0.1/8",
	}
	if serverAddr != "" {
		for name, bits := range localnets {
			s[name] = localnet(serverAddr, bits)
		}
	}
	return s
}

func (s Shortcuts) Resolve(source string) string {
	if raw, ok := s[source]; ok {
		return raw
	}
	return source
}

func (s Shortcuts) Pattern(source string) (restr.Pattern, error) {
	if _, ok := localnets[source]; ok {
		if _, ok := s[source]; !ok {
			return restr.Pattern{}, fmt.Errorf("shortcut '%s' needs a server address", source)
		}
	}
	return restr.ParsePattern(s.Resolve(source))
}

// localnetBits is the prefix length of a localnet shortcut, 0 for any other source.
func localnetBits(source string) int {
	return localnets[source]
}

func localnet(serverAddr string, bits int) string {
	return fmt.Sprintf("%s/%d", serverAddr, bits)
}
