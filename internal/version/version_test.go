package version

import (
	"strings"
	"testing"
)

func TestInfoMatchesGetters(t *testing.T) {
	v, c, d := Info()
	if v != GetVersion() || c != GetCommit() || d != GetDate() {
		t.Fatalf("getters disagree with Info: %s %s %s", v, c, d)
	}
	if v == "" || c == "" || d == "" {
		t.Fatal("build info must have defaults")
	}
}

func TestString(t *testing.T) {
	s := String()
	for _, part := range []string{"version=", "commit=", "date="} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %s", s, part)
		}
	}
}

func TestUserAgentAndFields(t *testing.T) {
	if got := UserAgent("dlq"); got != "medistore-dlq/"+GetVersion() {
		t.Errorf("unexpected user agent %s", got)
	}
	if Fields()["version"] != GetVersion() {
		t.Error("log fields must carry the version")
	}
}
