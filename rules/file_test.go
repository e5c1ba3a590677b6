package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFileText(t *testing.T) {
	path := writeFile(t, "rules.txt", `
# office
allow % from 192.168.1.0/24

  deny bob from 192.168.1.[10-20]
`)
	lines, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{
		"allow % from 192.168.1.0/24",
		"deny bob from 192.168.1.[10-20]",
	}, lines)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
rules:
  - allow % from localhost
  - kind: deny
    user: bob
    from: 10.0.0.0/8
`)
	lines, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{
		"allow % from localhost",
		"deny bob from 10.0.0.0/8",
	}, lines)

	rules, err := ParseRules(lines)
	require.NoError(t, err)
	require.Equal(t, Deny, rules[1].Kind)
}

func TestLoadFileYAMLInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"missing user":  "rules:\n  - kind: allow\n    from: all\n",
		"spaced field":  "rules:\n  - kind: allow\n    user: a b\n    from: all\n",
		"unknown field": "rules:\n  - kind: allow\n    user: a\n    from: all\n    to: x\n",
		"unknown top":   "policies: []\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "rules.yml", content))
			require.Error(t, err)
		})
	}
}

func TestLoadFileYAMLFirstBadField(t *testing.T) {
	path := writeFile(t, "rules.yaml", "rules:\n  - kind: a b\n    user: c d\n    from: e f\n")
	for iter := 0; iter < 10; iter++ {
		_, err := LoadFile(path)
		require.ErrorIs(t, err, ErrInvalidRule)
		require.ErrorContains(t, err, "'kind' must be a single word")
	}
}

func TestLoadFileEmpty(t *testing.T) {
	lines, err := LoadFile(writeFile(t, "rules.yaml", ""))
	require.NoError(t, err)
	require.Empty(t, lines)

	lines, err = LoadFile(writeFile(t, "rules", ""))
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
