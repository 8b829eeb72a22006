package rewrite

import "testing"

func TestIsPostCommand(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"POST article\r\n", true},
		{"POST\r\n", true},
		{"POST\tx\r\n", true},
		{"POST", false},
		{"POSTER\r\n", false},
		{"post article\r\n", false},
		{"Post article\r\n", false},
		{"LIST\r\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := isPostCommand([]byte(tt.line)); got != tt.want {
				t.Errorf("isPostCommand(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestHasContentTypeName(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Content-Type: text/plain\r\n", true},
		{"content-type: text/plain\r\n", true},
		{"CONTENT-TYPE:text/plain\r\n", true},
		{"cOnTeNt-TyPe: x\r\n", true},
		{"Content-Type\r\n", false},
		{"Content-Transfer-Encoding: 8bit\r\n", false},
		{"Subject: Content-Type:\r\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := hasContentTypeName([]byte(tt.line)); got != tt.want {
				t.Errorf("hasContentTypeName(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestIsTerminator(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{".\r\n", true},
		{"..\r\n", false},
		{".\n", false},
		{". \r\n", false},
		{"\r\n", false},
	}

	for _, tt := range tests {
		if got := isTerminator([]byte(tt.line)); got != tt.want {
			t.Errorf("isTerminator(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
