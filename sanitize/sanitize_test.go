package sanitize_test

import (
	"testing"

	"gleaner/sanitize"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "plain paragraph kept",
			input:    "<p>Hello world</p>",
			expected: "<p>Hello world</p>",
		},
		{
			name:     "script dropped with content",
			input:    "<p>ok</p><script>alert(1)</script>",
			expected: "<p>ok</p>",
		},
		{
			name:     "style dropped with content",
			input:    "<style>p{color:red}</style><p>ok</p>",
			expected: "<p>ok</p>",
		},
		{
			name:     "unknown tag unwrapped",
			input:    "<article><p>text</p></article>",
			expected: "<p>text</p>",
		},
		{
			name:     "span unwrapped keeps text",
			input:    "<p>a <span class=\"x\">b</span> c</p>",
			expected: "<p>a b c</p>",
		},
		{
			name:     "link keeps href drops onclick",
			input:    `<a href="https://example.com" onclick="steal()">link</a>`,
			expected: `<a href="https://example.com">link</a>`,
		},
		{
			name:     "javascript href dropped",
			input:    `<a href="javascript:alert(1)">link</a>`,
			expected: `<a>link</a>`,
		},
		{
			name:     "data image src dropped",
			input:    `<img src="data:text/html;base64,xyz" alt="x">`,
			expected: `<img alt="x"/>`,
		},
		{
			name:     "relative href kept",
			input:    `<a href="/about">about</a>`,
			expected: `<a href="/about">about</a>`,
		},
		{
			name:     "iframe removed entirely",
			input:    `<p>before</p><iframe src="https://evil"></iframe><p>after</p>`,
			expected: "<p>before</p><p>after</p>",
		},
		{
			name:     "nested list survives",
			input:    "<ul><li>one</li><li><b>two</b></li></ul>",
			expected: "<ul><li>one</li><li><b>two</b></li></ul>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitize.Clean(tt.input))
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "paragraphs become lines",
			input:    "<p>first</p><p>second</p>",
			expected: "first\nsecond",
		},
		{
			name:     "whitespace collapsed",
			input:    "<p>a   lot \n of   space</p>",
			expected: "a lot of space",
		},
		{
			name:     "script content excluded",
			input:    "<p>text</p><script>var x = 1;</script>",
			expected: "text",
		},
		{
			name:     "inline markup flattened",
			input:    "<p>one <b>two</b> three</p>",
			expected: "one two three",
		},
		{
			name:     "plain text passes through",
			input:    "just words",
			expected: "just words",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitize.Text(tt.input))
		})
	}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, sanitize.WordCount(""))
	assert.Equal(t, 3, sanitize.WordCount("one two three"))
	assert.Equal(t, 2, sanitize.WordCount("  spaced   out  "))
}
