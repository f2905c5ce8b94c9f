package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DotenvEntry is one KEY=VALUE assignment of a .env file.
type DotenvEntry struct {
	Key   string
	Value string
}

// ParseDotenv reads KEY=VALUE lines. Blank lines, comments and lines without
// a key are skipped; a leading "export " is accepted and matching quotes
// around the value are removed. Later entries win.
func ParseDotenv(r io.Reader) ([]DotenvEntry, error) {
	var out []DotenvEntry
	index := map[string]int{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		e := DotenvEntry{Key: key, Value: unquote(strings.TrimSpace(value))}
		if i, seen := index[key]; seen {
			out[i] = e
			continue
		}
		index[key] = len(out)
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("parse dotenv: %w", err)
	}
	return out, nil
}

// LoadDotenv exports the entries of the .env file at path that are not
// already set in the environment and returns their keys. A missing file is
// not an error.
func LoadDotenv(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := ParseDotenv(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var applied []string
	for _, e := range entries {
		if _, set := os.LookupEnv(e.Key); set {
			continue
		}
		if err := os.Setenv(e.Key, e.Value); err != nil {
			return applied, fmt.Errorf("set %s: %w", e.Key, err)
		}
		applied = append(applied, e.Key)
	}
	return applied, nil
}

func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	if q := s[0]; (q == '"' || q == '\'') && s[len(s)-1] == q {
		return s[1 : len(s)-1]
	}
	return s
}
