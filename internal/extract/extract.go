package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	appErr "github.com/dsetyadi/chatagent/internal/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// Extractor turns an uploaded file into the plain text that gets chunked
// and embedded. The filename extension selects the decoder.
type Extractor interface {
	ExtractText(r io.Reader, filename string) (string, error)
}

type extractor struct {
	md goldmark.Markdown
}

func New() Extractor {
	return &extractor{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (e *extractor) ExtractText(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", appErr.Storage(fmt.Errorf("read upload: %w", err))
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".text", "":
		if !utf8.Valid(data) {
			return "", appErr.Validation("file %q is not valid utf-8 text", filename)
		}
		return string(data), nil
	case ".md", ".markdown":
		if !utf8.Valid(data) {
			return "", appErr.Validation("file %q is not valid utf-8 text", filename)
		}
		return e.markdownText(data), nil
	default:
		return "", appErr.Validation("unsupported file type %q, want .txt or .md", ext)
	}
}

// markdownText flattens the markdown AST into plain text. Block nodes are
// separated by blank lines so downstream sentence detection still works.
func (e *extractor) markdownText(src []byte) string {
	root := e.md.Parser().Parse(text.NewReader(src))
	var buf bytes.Buffer
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				trimTrailingSpace(&buf)
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.AutoLink:
			buf.Write(node.URL(src))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	out := strings.TrimSpace(buf.String())
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return out
}

func trimTrailingSpace(buf *bytes.Buffer) {
	b := buf.Bytes()
	n := len(b)
	for n > 0 && (b[n-1] == ' ' || b[n-1] == '\t') {
		n--
	}
	buf.Truncate(n)
}
