package tools

import "testing"

func TestCheckCommand(t *testing.T) {
	tests := []struct {
		command string
		blocked bool
	}{
		{"go test ./...", false},
		{"npm test && echo done", false},
		{"rm build.log", false},
		{"ls -la | grep foo", false},
		{"rm -rf /", true},
		{"rm -r dist", true},
		{"rm --force x", true},
		{"echo hi; rm -fr ~", true},
		{"cd /tmp && sudo make install", true},
		{"env FOO=1 rm -rf .", true},
		{"timeout 5 rm -rf .", true},
		{"echo $(rm -rf x)", true},
		{"dd if=/dev/zero of=/dev/sda", true},
		{"mkfs.ext4 /dev/sdb1", true},
		{"chmod -R 777 /", true},
		{"chmod 644 file", false},
		{"echo x > /dev/sda", true},
		{"shutdown now", true},
	}
	for _, tt := range tests {
		err := checkCommand(tt.command)
		if tt.blocked && err == nil {
			t.Errorf("%q: expected block", tt.command)
		}
		if !tt.blocked && err != nil {
			t.Errorf("%q: unexpected block: %v", tt.command, err)
		}
	}
}

func TestCheckCommand_ParseError(t *testing.T) {
	if err := checkCommand("echo 'unterminated"); err == nil {
		t.Error("expected parse error")
	}
}
