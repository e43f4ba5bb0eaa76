package util

import (
	"strings"
	"testing"
)

func TestParseEnvList(t *testing.T) {
	cases := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b ", []string{"a", "b"}},
		{"a,,c", []string{"a", "c"}},
		{",", nil},
	}

	for _, tc := range cases {
		got := ParseEnvList(tc.input)
		if len(got) != len(tc.want) {
			t.Errorf("ParseEnvList(%q) = %v, want %v", tc.input, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseEnvList(%q)[%d] = %q, want %q", tc.input, i, got[i], tc.want[i])
			}
		}
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("MODELGATE_TEST_KEY", "custom")
	if got := GetEnvWithDefault("MODELGATE_TEST_KEY", "fallback"); got != "custom" {
		t.Errorf("expected custom, got %q", got)
	}
	if got := GetEnvWithDefault("MODELGATE_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestGenerateRandomID(t *testing.T) {
	id1 := GenerateRandomID("gen-")
	id2 := GenerateRandomID("gen-")

	if !strings.HasPrefix(id1, "gen-") {
		t.Errorf("missing prefix: %s", id1)
	}
	if id1 == id2 {
		t.Errorf("expected unique IDs, got %s twice", id1)
	}
	if len(id1) != len("gen-")+36 {
		t.Errorf("unexpected ID length: %s", id1)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("short", 4, 4, "..."); got != "short" {
		t.Errorf("short string changed: %q", got)
	}
	got := TruncateString("abcdefghijklmnop", 3, 3, "...")
	if got != "abc...nop" {
		t.Errorf("TruncateString = %q, want abc...nop", got)
	}
}

func TestEstimateTokenCount(t *testing.T) {
	if got := EstimateTokenCount(""); got != 0 {
		t.Errorf("empty text = %d tokens, want 0", got)
	}
	if got := EstimateTokenCount("ab"); got != 1 {
		t.Errorf("tiny text = %d tokens, want 1", got)
	}
	if got := EstimateTokenCount(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("40 chars = %d tokens, want 10", got)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	data, err := MarshalJSON(payload{Name: "gpt-4o"})
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var out payload
	if err := UnmarshalJSON(data, &out); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if out.Name != "gpt-4o" {
		t.Errorf("round trip lost data: %+v", out)
	}
}
