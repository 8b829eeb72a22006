package rewrite

import "bytes"

// contentTypeName is the header name matched case-insensitively, colon included.
var contentTypeName = []byte("CONTENT-TYPE:")

var (
	terminatorLine = []byte(".\r\n")
	headerEndLine  = []byte("\r\n")
)

// isPostCommand reports whether line starts the POST command: the literal
// keyword (case-sensitive) followed by a whitespace byte.
func isPostCommand(line []byte) bool {
	if len(line) < 5 || !bytes.HasPrefix(line, []byte("POST")) {
		return false
	}
	switch line[4] {
	case ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

// hasContentTypeName reports whether line begins with the Content-Type
// header name, compared case-insensitively byte by byte.
func hasContentTypeName(line []byte) bool {
	if len(line) < len(contentTypeName) {
		return false
	}
	for i, want := range contentTypeName {
		b := line[i]
		if 'a' <= b && b <= 'z' {
			b -= 'a' - 'A'
		}
		if b != want {
			return false
		}
	}
	return true
}

// isTerminator reports whether line is the message terminator: a dot alone
// on its own line. Nothing else ends a message body.
func isTerminator(line []byte) bool {
	return bytes.Equal(line, terminatorLine)
}

// isHeaderEnd reports whether line is the blank line closing a header block.
func isHeaderEnd(line []byte) bool {
	return bytes.Equal(line, headerEndLine)
}
