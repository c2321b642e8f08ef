package frontmatter

import (
	"errors"
	"testing"

	"github.com/inful/mdfp"
	"github.com/stretchr/testify/require"
)

func TestSplit_NoFrontmatter_ReturnsBodyOnly(t *testing.T) {
	input := []byte("# Title\n\nHello\n")

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplit_YAMLFrontmatter_SplitsFrontmatterAndBody(t *testing.T) {
	fm, body, had, err := Split([]byte("---\ntitle: Hello\n---\n# Title\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Hello\n"), fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplit_CRLF(t *testing.T) {
	fm, body, had, err := Split([]byte("---\r\ntitle: Hello\r\n---\r\n# Title\r\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Hello\r\n"), fm)
	require.Equal(t, []byte("# Title\r\n"), body)
}

func TestSplit_EmptyBlockAndMissingTrailingNewline(t *testing.T) {
	fm, body, had, err := Split([]byte("---\n---\n# Title\n"))
	require.NoError(t, err)
	require.True(t, had)
	require.Empty(t, fm)
	require.Equal(t, []byte("# Title\n"), body)

	fm, body, had, err = Split([]byte("---\ntitle: x\n---"))
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: x\n"), fm)
	require.Empty(t, body)
}

func TestSplit_MissingClosingDelimiter_ReturnsError(t *testing.T) {
	_, _, had, err := Split([]byte("---\ntitle: x\n# Title\n"))
	require.Error(t, err)
	require.False(t, had)
	require.True(t, errors.Is(err, ErrMissingClosingDelimiter))
}

func TestParse(t *testing.T) {
	doc, err := Parse([]byte("---\ntitle: Hello\ntags:\n  - go\ndraft: true\n---\nBody\n"))
	require.NoError(t, err)
	require.True(t, doc.HasFrontmatter)
	require.Equal(t, "Hello", doc.Fields["title"])
	require.Equal(t, []any{"go"}, doc.Fields["tags"])
	require.Equal(t, true, doc.Fields["draft"])
	require.Equal(t, []byte("Body\n"), doc.Body)

	_, err = Parse([]byte("---\n: not yaml\n---\n"))
	require.Error(t, err)
}

func TestCanonical_SortsKeysRecursively(t *testing.T) {
	out, err := Canonical(map[string]any{
		"zeta":  1,
		"alpha": map[string]any{"b": "x", "a": true},
	})
	require.NoError(t, err)
	require.Equal(t, "alpha:\n  a: true\n  b: x\nzeta: 1\n", string(out))
}

func TestFingerprint_IgnoresFormatting(t *testing.T) {
	a, err := Parse([]byte("---\ntitle: Hello\ntags: [go, web]\n---\nBody\n"))
	require.NoError(t, err)
	b, err := Parse([]byte("---\r\ntags:\r\n  - go\r\n  - web\r\ntitle: \"Hello\"\r\n---\r\nBody\r\n"))
	require.NoError(t, err)

	fa, err := Fingerprint(a.Fields, a.Body)
	require.NoError(t, err)
	fb, err := Fingerprint(b.Fields, b.Body)
	require.NoError(t, err)
	require.Equal(t, fa, fb)

	c, err := Parse([]byte("---\ntitle: Hello!\ntags: [go, web]\n---\nBody\n"))
	require.NoError(t, err)
	fc, err := Fingerprint(c.Fields, c.Body)
	require.NoError(t, err)
	require.NotEqual(t, fa, fc)
}

func TestFingerprint_IgnoresStoredFingerprint(t *testing.T) {
	body := []byte("Body\n")
	plain, err := Fingerprint(map[string]any{"title": "x"}, body)
	require.NoError(t, err)
	stored, err := Fingerprint(map[string]any{"title": "x", mdfp.FingerprintField: "deadbeef"}, body)
	require.NoError(t, err)
	require.Equal(t, plain, stored)
}
