// Package markdown provides a Normaliser for Markdown documents built on
// the goldmark parser.
package markdown

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driven"
	"github.com/custodia-labs/jam/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct {
	md goldmark.Markdown
}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{md: goldmark.New()}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise parses the Markdown and keeps its readable text: headings,
// paragraphs, list items and code. Markup, images and raw HTML are dropped.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormalisedText, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	src := raw.Content
	doc := n.md.Parser().Parse(text.NewReader(src))

	title := ""
	var buf bytes.Buffer
	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if endsBlock(node) {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := node.(type) {
		case *ast.Heading:
			if title == "" && node.Level == 1 {
				title = strings.TrimSpace(string(node.Text(src)))
			}
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			switch {
			case node.HardLineBreak():
				buf.WriteByte('\n')
			case node.SoftLineBreak():
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Image, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = normalisers.TitleFromURI(raw.URI)
	}
	return &domain.NormalisedText{
		Text: tidy(buf.String()),
		Meta: normalisers.BaseMeta(raw, title, "markdown"),
	}, nil
}

// endsBlock reports whether leaving node ends a line of text.
func endsBlock(node ast.Node) bool {
	switch node.Kind() {
	case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock,
		ast.KindFencedCodeBlock, ast.KindCodeBlock:
		return true
	}
	return false
}

// tidy trims trailing space from each line and drops blank lines.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
