package secret

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// ExpandEnvStrict expands $VAR and ${VAR} in s. Every referenced variable
// must be set; the error lists the missing names. "$$" yields a literal "$".
func ExpandEnvStrict(s string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	missing := map[string]struct{}{}
	var b strings.Builder
	for {
		i := strings.IndexByte(s, '$')
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		s = s[i:]

		if strings.HasPrefix(s, "$$") {
			b.WriteByte('$')
			s = s[2:]
			continue
		}

		// Expand exactly one reference so "$$" handling stays ours.
		n := refLen(s)
		if n == 0 {
			b.WriteByte('$')
			s = s[1:]
			continue
		}
		b.WriteString(os.Expand(s[:n], func(name string) string {
			v, ok := os.LookupEnv(name)
			if !ok {
				missing[name] = struct{}{}
			}
			return v
		}))
		s = s[n:]
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for k := range missing {
			names = append(names, k)
		}
		sort.Strings(names)
		return "", fmt.Errorf("missing required environment variables: %s", strings.Join(names, ", "))
	}
	return b.String(), nil
}

// refLen returns the length of the variable reference at the start of s,
// which begins with '$', or 0 if there is none.
func refLen(s string) int {
	if len(s) < 2 {
		return 0
	}
	if s[1] == '{' {
		end := strings.IndexByte(s, '}')
		if end < 3 || !isName(s[2:end]) {
			return 0
		}
		return end + 1
	}
	n := 1
	for n < len(s) && isNameByte(s[n], n == 1) {
		n++
	}
	if n == 1 {
		return 0
	}
	return n
}

func isName(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isNameByte(s[i], i == 0) {
			return false
		}
	}
	return s != ""
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return !first
	}
	return false
}
