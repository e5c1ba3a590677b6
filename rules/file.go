package rules

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads rule lines from a file. Files ending in .yaml or .yml hold a "rules" list,
// anything else is plain text with one rule per line, blank lines and # comments skipped.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read rules file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseText(data)
	}
}

func parseText(data []byte) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read rules file: %w", err)
	}
	return lines, nil
}

type yamlRules struct {
	Rules []yamlRule `yaml:"rules"`
}

// yamlRule is either a plain rule line or a mapping with kind, user and from.
type yamlRule struct {
	line string
}

type yamlRuleFields struct {
	Kind string `yaml:"kind"`
	User string `yaml:"user"`
	From string `yaml:"from"`
}

func (r *yamlRule) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&r.line)
	}

	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch key := node.Content[i].Value; key {
			case "kind", "user", "from":
			default:
				return fmt.Errorf("line %d: %w: unknown field '%s'", node.Content[i].Line, ErrInvalidRule, key)
			}
		}
	}

	var fields yamlRuleFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	for _, field := range []struct{ name, value string }{
		{"kind", fields.Kind},
		{"user", fields.User},
		{"from", fields.From},
	} {
		if field.value == "" || strings.ContainsAny(field.value, " \t") {
			return fmt.Errorf("line %d: %w: '%s' must be a single word", node.Line, ErrInvalidRule, field.name)
		}
	}
	r.line = fmt.Sprintf("%s %s from %s", fields.Kind, fields.User, fields.From)
	return nil
}

func parseYAML(data []byte) ([]string, error) {
	var file yamlRules
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	switch err := dec.Decode(&file); {
	case errors.Is(err, io.EOF):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("cannot decode rules file: %w", err)
	}

	lines := make([]string, len(file.Rules))
	for i, rule := range file.Rules {
		lines[i] = rule.line
	}
	return lines, nil
}
