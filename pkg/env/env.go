package env

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// plainValue matches values that can be written without quoting.
var plainValue = regexp.MustCompile(`^[A-Za-z0-9_./:@,+\-]*$`)

// Save writes the provided key/value pairs to a file in .env format.
//
//   - path  - absolute or relative file path to create/overwrite.
//   - vars  - map of environment variables (keys MUST be non-empty).
//
// Variables are written sorted by name. Values outside the plain character set
// are double-quoted with backslashes, quotes and line breaks escaped so that
// docker compose reads them back verbatim.
func Save(path string, vars map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create env directory: %w", err)
	}

	if err := os.WriteFile(path, Render(vars), 0o644); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	return nil
}

// Render returns the .env representation of vars.
func Render(vars map[string]string) []byte {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		if strings.TrimSpace(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, quote(vars[k]))
	}
	return buf.Bytes()
}

// Load reads a .env file written by Save (or by hand). A missing file yields
// an empty map and no error.
func Load(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes .env content. Blank lines and lines starting with # are skipped.
func Parse(data []byte) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: missing '=' in %q", line, text)
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		if key == "" {
			return nil, fmt.Errorf("line %d: empty variable name", line)
		}
		vars[key] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

func quote(v string) string {
	if plainValue.MatchString(v) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	v = strings.ReplaceAll(v, "\r\n", `\n`)
	v = strings.ReplaceAll(v, "\n", `\n`)
	v = strings.ReplaceAll(v, "\r", `\r`)
	return `"` + v + `"`
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return v
	}
	v = v[1 : len(v)-1]

	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' || i == len(v)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch v[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '"', '\\':
			b.WriteByte(v[i])
		default:
			b.WriteByte('\\')
			b.WriteByte(v[i])
		}
	}
	return b.String()
}
