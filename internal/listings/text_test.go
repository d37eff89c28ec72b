package listings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"crlf and spaces", "Line  one\r\nLine\ttwo  ", "Line one\nLine two"},
		{"blank runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"bullets", "  • first\n· second\n* third", "- first\n- second\n- third"},
		{"nbsp", "Go  developer", "Go developer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.input))
		})
	}
}

func TestHTMLToText(t *testing.T) {
	text, err := HTMLToText(`<h2>About</h2><p>Remote   team</p><ul><li>Go</li><li>gRPC</li></ul><style>p{}</style>`)
	require.NoError(t, err)
	assert.Equal(t, "About\nRemote team\n- Go\n- gRPC", text)
}
