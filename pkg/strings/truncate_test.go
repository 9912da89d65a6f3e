package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCell(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{name: "short value unchanged", input: "laptop", maxLen: 10, want: "laptop"},
		{name: "exact length unchanged", input: "0123456789", maxLen: 10, want: "0123456789"},
		{name: "cut with ellipsis", input: "Created by alice on 2025-06-01 08:00", maxLen: 13, want: "Created by..."},
		{name: "newlines collapsed", input: "ci\nrunner\t\tnightly", maxLen: 40, want: "ci runner nightly"},
		{name: "multibyte runes kept whole", input: "télédétection", maxLen: 8, want: "téléd..."},
		{name: "tiny max is clamped", input: "abcdef", maxLen: 1, want: "a..."},
		{name: "empty", input: "", maxLen: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Cell(tt.input, tt.maxLen))
		})
	}
}
