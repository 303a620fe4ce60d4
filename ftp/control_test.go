package ftp

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadReply_SingleLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		wantCode int
		wantMsg  string
	}{
		{"greeting", "220 Welcome\r\n", 220, "Welcome"},
		{"error", "550 File not found\r\n", 550, "File not found"},
		{"empty message", "200 \r\n", 200, ""},
		{"bare code", "200\r\n", 200, ""},
		{"bare newline", "226 Transfer complete\n", 226, "Transfer complete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("readReply() error = %v", err)
			}
			if reply.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", reply.Code, tt.wantCode)
			}
			if reply.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", reply.Message, tt.wantMsg)
			}
		})
	}
}

func TestReadReply_MultiLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		input     string
		wantCode  int
		wantMsg   string
		wantLines int
	}{
		{
			name: "dash continuation",
			input: "220-Welcome to FTP\r\n" +
				"220-This is line 2\r\n" +
				"220 Ready\r\n",
			wantCode:  220,
			wantMsg:   "Welcome to FTP\nThis is line 2\nReady",
			wantLines: 3,
		},
		{
			name: "RFC 2389 feature lines",
			input: "211-Features:\r\n" +
				" MLST type*;size*;\r\n" +
				" EPSV\r\n" +
				"211 End\r\n",
			wantCode:  211,
			wantMsg:   "Features:\n MLST type*;size*;\n EPSV\nEnd",
			wantLines: 4,
		},
		{
			name: "other code inside the body",
			input: "230-Notice:\r\n" +
				"220 is not the end\r\n" +
				"230 Login successful\r\n",
			wantCode:  230,
			wantMsg:   "Notice:\n220 is not the end\nLogin successful",
			wantLines: 3,
		},
		{
			name:      "bare terminator",
			input:     "211-Status\r\n body\r\n211\r\n",
			wantCode:  211,
			wantMsg:   "Status\n body",
			wantLines: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := readReply(bufio.NewReader(strings.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("readReply() error = %v", err)
			}
			if reply.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", reply.Code, tt.wantCode)
			}
			if reply.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", reply.Message, tt.wantMsg)
			}
			if len(reply.Lines) != tt.wantLines {
				t.Errorf("got %d lines, want %d", len(reply.Lines), tt.wantLines)
			}
		})
	}
}

func TestReadReply_Malformed(t *testing.T) {
	t.Parallel()
	for _, input := range []string{
		"",
		"22\r\n",
		"abc Hello\r\n",
		"999 Out of range\r\n",
		"220xWelcome\r\n",
		"220-Unterminated\r\n",
	} {
		if _, err := readReply(bufio.NewReader(strings.NewReader(input))); err == nil {
			t.Errorf("readReply(%q) succeeded, want error", input)
		}
	}
}

func TestReplyClasses(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code         int
		preliminary  bool
		success      bool
		intermediate bool
	}{
		{150, true, false, false},
		{226, false, true, false},
		{331, false, false, true},
		{550, false, false, false},
	}
	for _, tt := range tests {
		r := &Reply{Code: tt.code}
		if r.Preliminary() != tt.preliminary || r.Success() != tt.success || r.Intermediate() != tt.intermediate {
			t.Errorf("%d: got (%v, %v, %v)", tt.code, r.Preliminary(), r.Success(), r.Intermediate())
		}
	}
}

func TestParseFeatures(t *testing.T) {
	t.Parallel()
	lines := []string{
		"211-Extensions supported:",
		" MLST size*;create;modify*;perm;media-type",
		" SIZE",
		"211-EPSV",
		" mdtm",
		"211 END",
	}

	got := parseFeatures(lines)
	want := map[string]string{
		"MLST": "size*;create;modify*;perm;media-type",
		"SIZE": "",
		"EPSV": "",
		"MDTM": "",
	}
	if len(got) != len(want) {
		t.Errorf("got %d features, want %d: %v", len(got), len(want), got)
	}
	for name, params := range want {
		if p, ok := got[name]; !ok || p != params {
			t.Errorf("feature %s = %q (present=%v), want %q", name, p, ok, params)
		}
	}

	if got := parseFeatures([]string{"211 No features"}); len(got) != 0 {
		t.Errorf("single-line FEAT gave %v", got)
	}
}
