package template

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// varPattern captures the inside of a ${...} expression.
var varPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// Substitute performs Docker-Compose-style variable substitution on input.
// Supported forms:
//  1. ${VAR}          – value, or empty string if unset
//  2. ${VAR:-default} – default if VAR is unset or empty
//  3. ${VAR-default}  – default if VAR is unset
//  4. ${VAR:?err}     – error if VAR is unset or empty
//  5. ${VAR?err}      – error if VAR is unset
//
// Only the vars map is consulted; the orchestrator's own environment never
// leaks into rendered app files.
func Substitute(input string, vars map[string]string) (string, error) {
	indices := varPattern.FindAllStringSubmatchIndex(input, -1)
	if len(indices) == 0 {
		return input, nil
	}

	var builder strings.Builder
	builder.Grow(len(input))

	lastPos := 0
	for _, idx := range indices {
		builder.WriteString(input[lastPos:idx[0]])

		substitution, err := evaluateExpression(input[idx[2]:idx[3]], vars)
		if err != nil {
			return "", err
		}
		builder.WriteString(substitution)
		lastPos = idx[1]
	}
	builder.WriteString(input[lastPos:])

	return builder.String(), nil
}

// RenderFile substitutes vars into the file at src and writes the result to
// dst, creating parent directories as needed. The source file mode is kept.
func RenderFile(src, dst string, vars map[string]string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat template %s: %w", src, err)
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", src, err)
	}
	rendered, err := Substitute(string(content), vars)
	if err != nil {
		return fmt.Errorf("failed to render template %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	return os.WriteFile(dst, []byte(rendered), info.Mode().Perm())
}

// evaluateExpression processes a single expression without the enclosing ${}.
func evaluateExpression(expr string, vars map[string]string) (string, error) {
	name, op, operand := splitExpression(expr)
	value, exists := vars[name]

	switch op {
	case "":
		return value, nil
	case "-":
		if exists {
			return value, nil
		}
		return operand, nil
	case ":-":
		if exists && value != "" {
			return value, nil
		}
		return operand, nil
	case "?":
		if exists {
			return value, nil
		}
		return "", fmt.Errorf("variable %s is not set: %s", name, operand)
	case ":?":
		if exists && value != "" {
			return value, nil
		}
		return "", fmt.Errorf("variable %s is not set or empty: %s", name, operand)
	default:
		return "", fmt.Errorf("invalid variable expression: ${%s}", expr)
	}
}

// splitExpression finds the first operator in expr. Two-character operators
// are checked at each position before their one-character prefixes.
func splitExpression(expr string) (name, op, operand string) {
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case ':':
			if i+1 < len(expr) && (expr[i+1] == '-' || expr[i+1] == '?') {
				return strings.TrimSpace(expr[:i]), expr[i : i+2], expr[i+2:]
			}
		case '-', '?':
			return strings.TrimSpace(expr[:i]), expr[i : i+1], expr[i+1:]
		}
	}
	return strings.TrimSpace(expr), "", ""
}
