package idhash

import (
	"encoding/hex"
	"testing"
)

func TestAttribute(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{
			name:  "empty",
			value: "",
			want:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:  "abc",
			value: "abc",
			want:  "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Attribute(tt.value)
			got := hex.EncodeToString(d[:])
			if got != tt.want {
				t.Errorf("Attribute(%q) = %s, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestAttribute_NotNormalized(t *testing.T) {
	if Attribute("Alice") == Attribute("alice") {
		t.Error("case variants must hash differently")
	}
	if Attribute("Alice") == Attribute(" Alice") {
		t.Error("whitespace must be significant")
	}
}

func TestMatches(t *testing.T) {
	d := Attribute("1990-04-01")
	if !Matches(d, "1990-04-01") {
		t.Error("expected match")
	}
	if Matches(d, "1990-04-02") {
		t.Error("unexpected match")
	}
}
