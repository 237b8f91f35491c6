package version

import (
	"strings"
	"testing"
)

func TestFullVersionContainsFields(t *testing.T) {
	Version = "1.2.3"
	GitCommit = "abcdef"
	BuildTime = "now"

	fv := FullVersion()
	if fv == "" || !containsAll(fv, []string{"1.2.3", "abcdef", "now"}) {
		t.Fatalf("full version missing details: %s", fv)
	}

	if ua := UserAgent(); ua != "Refreshmint/1.2.3" {
		t.Fatalf("unexpected user agent %s", ua)
	}
}

func TestParseSemverAndCompatibility(t *testing.T) {
	v, err := ParseSemver("1.2.3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Major != 1 || v.Minor != 2 || v.Patch != 3 {
		t.Fatalf("unexpected parse result: %+v", v)
	}
	if v.String() != "1.2.3" {
		t.Fatalf("unexpected string form: %s", v.String())
	}

	if _, err := ParseSemver("1.2"); err == nil {
		t.Fatalf("expected error for malformed semver")
	}

	engine := Semver{Major: 1, Minor: 3, Patch: 0}
	if !CompatibleWith(engine, Semver{Major: 1, Minor: 1, Patch: 0}) {
		t.Fatalf("expected older minor version to be compatible")
	}
	if CompatibleWith(engine, Semver{Major: 1, Minor: 4, Patch: 0}) {
		t.Fatalf("expected newer minor version to be incompatible")
	}
	if CompatibleWith(engine, Semver{Major: 2, Minor: 0, Patch: 0}) {
		t.Fatalf("expected different major version to be incompatible")
	}
}

func containsAll(s string, parts []string) bool {
	for _, part := range parts {
		if !strings.Contains(s, part) {
			return false
		}
	}
	return true
}
