// Package frontmatter splits YAML frontmatter from markdown sources and
// derives the canonical content fingerprint used for change detection.
package frontmatter

import (
	"bytes"
	"errors"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// frontmatter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// Document is a parsed markdown source.
type Document struct {
	Fields         map[string]any
	Body           []byte
	HasFrontmatter bool
}

// Parse splits content and decodes its frontmatter. Documents without a
// frontmatter block yield an empty Fields map.
func Parse(content []byte) (*Document, error) {
	raw, body, had, err := Split(content)
	if err != nil {
		return nil, err
	}
	fields, err := ParseYAML(raw)
	if err != nil {
		return nil, err
	}
	return &Document{Fields: fields, Body: body, HasFrontmatter: had}, nil
}

// Split separates YAML frontmatter (`---` delimited) from the Markdown body.
//
// If the document does not start with a YAML frontmatter delimiter, had is false
// and body is the full input.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		// A closing delimiter on the last line without a trailing newline.
		if bytes.HasSuffix(content, []byte(nl+"---")) {
			end := len(content) - len("---")
			return content[start:end], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}

	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closeSeq):], true, nil
}

// ParseYAML parses raw YAML frontmatter (without --- delimiters) into a map.
func ParseYAML(frontmatter []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(frontmatter)) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Fingerprint computes the canonical content fingerprint of a document.
// Formatting-only frontmatter changes (key order, quoting, newline style)
// do not change the result; a stored fingerprint field is ignored.
func Fingerprint(fields map[string]any, body []byte) (string, error) {
	hashed := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == mdfp.FingerprintField {
			continue
		}
		hashed[k] = v
	}

	canonical := ""
	if len(hashed) > 0 {
		serialized, err := Canonical(hashed)
		if err != nil {
			return "", err
		}
		canonical = strings.TrimSuffix(string(serialized), "\n")
	}

	normalizedBody := strings.ReplaceAll(string(body), "\r\n", "\n")
	return mdfp.CalculateFingerprintFromParts(canonical, normalizedBody), nil
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
