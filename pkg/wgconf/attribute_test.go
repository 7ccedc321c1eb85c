package wgconf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAttribute(t *testing.T) {
	tests := []struct {
		line  string
		key   string
		value string
	}{
		{line: "PrivateKey = abc", key: "PrivateKey", value: "abc"},
		{line: "  MTU=1420  ", key: "MTU", value: "1420"},
		{line: "AllowedIPs = 10.0.0.0/8, ::/0 # everything", key: "AllowedIPs", value: "10.0.0.0/8, ::/0"},
		{line: "DNS\t=\t1.1.1.1", key: "DNS", value: "1.1.1.1"},
	}

	for _, tt := range tests {
		attribute, ok := ParseAttribute(tt.line)
		if !ok {
			t.Fatalf("expected %q to match", tt.line)
		}
		if attribute.Key != tt.key {
			t.Fatalf("expected key %q, got %q", tt.key, attribute.Key)
		}
		if attribute.Value != tt.value {
			t.Fatalf("expected value %q, got %q", tt.value, attribute.Value)
		}
	}
}

func TestParseAttributeNoMatch(t *testing.T) {
	lines := []string{
		"",
		"[Interface]",
		"MTU =",
		"MTU = # comment",
		"= value",
		"Private-Key = abc",
		"just some words",
	}

	for _, line := range lines {
		if attribute, ok := ParseAttribute(line); ok {
			t.Fatalf("expected %q not to match, got %v", line, attribute)
		}
	}
}

func TestSplitAndJoinList(t *testing.T) {
	values := SplitList(" a, b ,,c , ")
	if diff := cmp.Diff([]string{"a", "b", "c"}, values); diff != "" {
		t.Fatalf("unexpected split (-want +got):\n%s", diff)
	}
	if got := JoinList(values); got != "a, b, c" {
		t.Fatalf("expected %q, got %q", "a, b, c", got)
	}
	if got := SplitList(JoinList(values)); !cmp.Equal(values, got) {
		t.Fatalf("expected join to be the inverse of split, got %v", got)
	}
}
