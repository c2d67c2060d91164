package policy

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestDefaultTable_RequiresAuth(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		path string
		want bool
	}{
		{"/fhir/metadata", false},
		{"/fhir/metadata/", false},
		{"/fhir", true},
		{"/fhir/", true},
		{"/fhir/Patient", true},
		{"/fhir/Patient/123/_history/2", true},
		{"/fhir/metadata/../Patient", true},
		{"//fhir//Patient", true},
		{"/actuator/health", false},
		{"/actuator/prometheus", true},
		{"/actuator/info", true},
		{"/", false},
		{"", false},
		{"/css/site.css", false},
		{"/webjars/bootstrap/5.3/js/bootstrap.js", false},
		{"/favicon.ico", false},
		{"/tester/metadata", false},
		{"/home", false},
		{"/read/Patient/1", false},
		{"/unknown/path", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := table.RequiresAuth(tt.path); got != tt.want {
				t.Errorf("RequiresAuth(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDefaultTable_Order(t *testing.T) {
	entries := DefaultTable().Entries()

	index := func(p string) int {
		for i, e := range entries {
			if e.Pattern == p {
				return i
			}
		}
		t.Fatalf("pattern %q missing", p)
		return -1
	}

	if index("/fhir/metadata") > index("/fhir/**") {
		t.Error("/fhir/metadata must precede /fhir/**")
	}
	if index("/actuator/health") > index("/actuator/**") {
		t.Error("/actuator/health must precede /actuator/**")
	}
	if last := entries[len(entries)-1]; last.Pattern != "/**" || last.RequiresAuth {
		t.Errorf("last entry = %+v, want permit /**", last)
	}
}

func TestTable_Match(t *testing.T) {
	table := MustNewTable(
		Permit("/page/home"),
		Authenticate("/page/*"),
		Permit("/api/public/**"),
		Authenticate("/api/**"),
	)

	tests := []struct {
		path    string
		pattern string
		matched bool
	}{
		{"/page/home", "/page/home", true},
		{"/page/other", "/page/*", true},
		{"/page", "", false},
		{"/page/a/b", "", false},
		{"/api", "/api/**", true},
		{"/api/public", "/api/public/**", true},
		{"/api/public/x/y", "/api/public/**", true},
		{"/api/publicity", "/api/**", true},
		{"/other", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			e, ok := table.Match(tt.path)
			if ok != tt.matched || e.Pattern != tt.pattern {
				t.Errorf("Match(%q) = (%q, %v), want (%q, %v)", tt.path, e.Pattern, ok, tt.pattern, tt.matched)
			}
		})
	}

	if !table.RequiresAuth("/other") {
		t.Error("unmatched path must require auth")
	}
}

func TestNewTable_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		target  error
	}{
		{"relative", []Entry{Permit("fhir/**")}, ErrInvalidPattern},
		{"inner wildcard", []Entry{Permit("/fhir/*/history")}, ErrInvalidPattern},
		{"inner double wildcard", []Entry{Permit("/**/metadata")}, ErrInvalidPattern},
		{"literal after subtree", []Entry{Authenticate("/fhir/**"), Permit("/fhir/metadata")}, ErrShadowedEntry},
		{"subtree root after subtree", []Entry{Authenticate("/fhir/**"), Permit("/fhir")}, ErrShadowedEntry},
		{"literal after segment", []Entry{Authenticate("/page/*"), Permit("/page/home")}, ErrShadowedEntry},
		{"segment after subtree", []Entry{Permit("/page/**"), Authenticate("/page/x/*")}, ErrShadowedEntry},
		{"nested subtree", []Entry{Permit("/api/**"), Authenticate("/api/admin/**")}, ErrShadowedEntry},
		{"anything after catch-all", []Entry{Permit("/**"), Authenticate("/fhir/**")}, ErrShadowedEntry},
		{"duplicate literal", []Entry{Permit("/home"), Authenticate("/home")}, ErrShadowedEntry},
		{"duplicate segment", []Entry{Permit("/p/*"), Permit("/p/*")}, ErrShadowedEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.entries...)
			if !errors.Is(err, tt.target) {
				t.Errorf("NewTable() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestNewTable_AllowsSiblings(t *testing.T) {
	_, err := NewTable(
		Permit("/fhir/metadata"),
		Authenticate("/fhir/**"),
		Permit("/fhirx"),
		Authenticate("/page/*"),
		Permit("/page/a/b"),
		Permit("/**"),
	)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
}

func TestEntries_ReturnsCopy(t *testing.T) {
	table := DefaultTable()
	e := table.Entries()
	e[0].RequiresAuth = true
	if table.RequiresAuth("/") {
		t.Error("mutating Entries() changed the table")
	}
}

func TestTable_Deterministic(t *testing.T) {
	table := DefaultTable()
	segments := []string{"fhir", "metadata", "Patient", "actuator", "health", "css", "..", ".", "", "tester", "x"}

	rapid.Check(t, func(rt *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(segments), 0, 5).Draw(rt, "segments")
		p := "/"
		for i, s := range parts {
			if i > 0 {
				p += "/"
			}
			p += s
		}

		first := table.RequiresAuth(p)
		for i := 0; i < 3; i++ {
			if got := table.RequiresAuth(p); got != first {
				rt.Fatalf("RequiresAuth(%q) flipped to %v", p, got)
			}
		}
		if Clean(p) != Clean(Clean(p)) {
			rt.Fatalf("Clean not idempotent for %q", p)
		}
		if first != table.RequiresAuth(Clean(p)) {
			rt.Fatalf("RequiresAuth(%q) differs from its cleaned form", p)
		}

		e, ok := table.Match(p)
		if !ok {
			rt.Fatalf("Match(%q) found nothing; default table has a catch-all", p)
		}
		for _, prior := range table.Entries() {
			if prior.Pattern == e.Pattern {
				break
			}
			c, _ := compile(prior)
			if c.match(Clean(p)) {
				rt.Fatalf("Match(%q) = %q but earlier %q also matches", p, e.Pattern, prior.Pattern)
			}
		}
	})
}
