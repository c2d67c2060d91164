package policy

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrInvalidPattern indicates a pattern outside the supported forms.
	ErrInvalidPattern = errors.New("policy: invalid pattern")

	// ErrShadowedEntry indicates an entry that an earlier entry already
	// matches for every path it could match.
	ErrShadowedEntry = errors.New("policy: entry shadowed by earlier entry")
)

// Entry maps a path pattern to whether matching requests must be authorized.
//
// Supported patterns:
//   - "/fhir/metadata": exact path
//   - "/page/*": exactly one segment below /page
//   - "/fhir/**": /fhir itself and everything below it
//   - "/**": every path
type Entry struct {
	Pattern      string
	RequiresAuth bool
}

// Permit returns an entry that exempts Pattern from authorization.
func Permit(pattern string) Entry { return Entry{Pattern: pattern} }

// Authenticate returns an entry that requires authorization for Pattern.
func Authenticate(pattern string) Entry { return Entry{Pattern: pattern, RequiresAuth: true} }

type kind int

const (
	literal kind = iota
	segment      // prefix/*
	subtree      // prefix/**
)

type compiled struct {
	Entry
	kind   kind
	prefix string
}

func compile(e Entry) (compiled, error) {
	p := e.Pattern
	if !strings.HasPrefix(p, "/") {
		return compiled{}, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, p)
	}

	c := compiled{Entry: e, kind: literal, prefix: p}
	switch {
	case strings.HasSuffix(p, "/**"):
		c.kind, c.prefix = subtree, strings.TrimSuffix(p, "/**")
	case strings.HasSuffix(p, "/*"):
		c.kind, c.prefix = segment, strings.TrimSuffix(p, "/*")
	}
	if strings.Contains(c.prefix, "*") {
		return compiled{}, fmt.Errorf("%w: %q has a wildcard before the last segment", ErrInvalidPattern, p)
	}
	return c, nil
}

func (c compiled) match(p string) bool {
	switch c.kind {
	case subtree:
		return c.prefix == "" || p == c.prefix || strings.HasPrefix(p, c.prefix+"/")
	case segment:
		rest, ok := strings.CutPrefix(p, c.prefix+"/")
		return ok && rest != "" && !strings.Contains(rest, "/")
	default:
		return p == c.prefix
	}
}

// covers reports whether every path matched by o is also matched by c.
func (c compiled) covers(o compiled) bool {
	switch o.kind {
	case literal:
		return c.match(o.prefix)
	case segment:
		if c.kind == segment {
			return c.prefix == o.prefix
		}
		return c.kind == subtree && c.match(o.prefix+"/x")
	default:
		return c.kind == subtree && c.match(o.prefix) && (o.prefix != "" || c.prefix == "")
	}
}

// Table is an ordered route policy. The first matching entry wins; a path no
// entry matches requires authorization.
type Table struct {
	entries []compiled
}

// NewTable validates and compiles entries in order.
//
// An entry that can never be reached because an earlier entry matches every
// path it would match is rejected, so specific patterns must precede the
// wildcards that contain them.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{entries: make([]compiled, 0, len(entries))}
	for i, e := range entries {
		c, err := compile(e)
		if err != nil {
			return nil, err
		}
		for j, prev := range t.entries {
			if prev.covers(c) {
				return nil, fmt.Errorf("%w: entry %d %q is covered by entry %d %q",
					ErrShadowedEntry, i, e.Pattern, j, prev.Pattern)
			}
		}
		t.entries = append(t.entries, c)
	}
	return t, nil
}

// MustNewTable is NewTable that panics on error.
func MustNewTable(entries ...Entry) *Table {
	t, err := NewTable(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// DefaultTable returns the gateway's route policy: static assets, the web
// tester pages, the FHIR capability statement and the health probe are
// public; the FHIR API and the remaining actuator endpoints require a token.
// Anything else is public.
func DefaultTable() *Table {
	return MustNewTable(
		Permit("/"),
		Permit("/css/**"),
		Permit("/js/**"),
		Permit("/img/**"),
		Permit("/webjars/**"),
		Permit("/favicon.ico"),
		Permit("/resources/**"),
		Permit("/content/**"),
		Permit("/home"),
		Permit("/about"),
		Permit("/resource"),
		Permit("/search"),
		Permit("/read/**"),
		Permit("/history/**"),
		Permit("/delete/**"),
		Permit("/page/**"),
		Permit("/tester/**"),
		Permit("/server/**"),
		Permit("/fhir/metadata"),
		Authenticate("/fhir/**"),
		Permit("/actuator/health"),
		Authenticate("/actuator/**"),
		Permit("/**"),
	)
}

// Entries returns the entries in evaluation order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	for i, c := range t.entries {
		out[i] = c.Entry
	}
	return out
}

// Match returns the first entry matching the cleaned request path.
func (t *Table) Match(requestPath string) (Entry, bool) {
	p := Clean(requestPath)
	for _, c := range t.entries {
		if c.match(p) {
			return c.Entry, true
		}
	}
	return Entry{}, false
}

// RequiresAuth reports whether requestPath must be authorized. Unmatched
// paths require authorization.
func (t *Table) RequiresAuth(requestPath string) bool {
	e, ok := t.Match(requestPath)
	return !ok || e.RequiresAuth
}

// Clean normalizes a request path before matching: dot segments and
// duplicate slashes are removed, and a trailing slash is dropped.
func Clean(requestPath string) string {
	if requestPath == "" {
		return "/"
	}
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}
	return path.Clean(requestPath)
}
