package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mapcore/server/internal/auth"
	"github.com/mapcore/server/internal/config"
)

func TestHashPassword(t *testing.T) {
	verifier := auth.NewPasswordService(&config.Config{})

	testCases := []struct {
		name      string
		input     string
		password  string
		expectErr bool
	}{
		{"line with newline", "CorrectHorse42\n", "CorrectHorse42", false},
		{"crlf line", "CorrectHorse42\r\n", "CorrectHorse42", false},
		{"no trailing newline", "CorrectHorse42", "CorrectHorse42", false},
		{"only first line", "CorrectHorse42\nignored\n", "CorrectHorse42", false},
		{"empty input", "", "", true},
		{"weak password", "short\n", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := hashPassword(strings.NewReader(tc.input), &out, 4)
			if tc.expectErr {
				if err == nil {
					t.Errorf("Expected error, got hash %q", out.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("hashPassword failed: %v", err)
			}
			hash := strings.TrimSpace(out.String())
			if !verifier.VerifyPassword(tc.password, hash) {
				t.Errorf("Hash %q does not verify against %q", hash, tc.password)
			}
		})
	}
}
