package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Normalize(t *testing.T) {
	r := Default()

	tests := []struct {
		in, want string
	}{
		{"python", "python"},
		{"PY", "python"},
		{" golang ", "go"},
		{"c++", "cpp"},
		{"C#", "csharp"},
		{"", Plaintext},
		{"brainfuck", Plaintext},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Normalize(tt.in))
		})
	}
}

func TestDefault_Extension(t *testing.T) {
	r := Default()
	assert.Equal(t, ".py", r.Extension("python"))
	assert.Equal(t, ".rs", r.Extension("rs"))
	assert.Equal(t, ".txt", r.Extension("unknown"))
}

func TestDefault_Runtimes(t *testing.T) {
	r := Default()

	names := r.RunnableNames()
	assert.Contains(t, names, "python")
	assert.Contains(t, names, "javascript")
	assert.NotContains(t, names, "go")

	py := r.Runtimes()["python"]
	assert.Equal(t, "python:3.12-alpine", py.Image)
	assert.Equal(t, []string{"python", "-c"}, py.Command)

	l, ok := r.Lookup("markdown")
	require.True(t, ok)
	assert.False(t, l.Runnable())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "languages: [unclosed"},
		{"missing plaintext", "languages:\n  - name: go\n"},
		{"duplicate alias", "languages:\n  - name: plaintext\n    aliases: [x]\n  - name: go\n    aliases: [X]\n"},
		{"empty name", "languages:\n  - name: plaintext\n  - label: nameless\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
