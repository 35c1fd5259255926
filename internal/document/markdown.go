package document

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

var frontmatterPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n`)

var md = goldmark.New()

// ParseMarkdown converts a markdown agenda into blocks. Heading level n maps to
// rank n, and every line of a paragraph becomes its own Paragraph block so that
// a markdown agenda reads the same way as a Docs agenda with one paragraph per line.
func ParseMarkdown(src []byte) []types.Block {
	src = frontmatterPattern.ReplaceAll(src, nil)
	doc := md.Parser().Parse(text.NewReader(src))

	blocks := make([]types.Block, 0)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			line := strings.Join(inlineLines(node, src), " ")
			blocks = append(blocks, types.NewHeading(line, types.Rank(node.Level)))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			for _, line := range inlineLines(node, src) {
				blocks = append(blocks, types.NewParagraph(line))
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.ThematicBreak, *ast.HTMLBlock:
			blocks = append(blocks, types.NewOther())
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

// inlineLines flattens the inline children of a block node, splitting on line breaks.
func inlineLines(n ast.Node, src []byte) []string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		lines = append(lines, cur.String())
		cur.Reset()
	}

	var walk func(ast.Node)
	walk = func(parent ast.Node) {
		for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Text:
				cur.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					flush()
				}
			case *ast.String:
				cur.Write(node.Value)
			case *ast.AutoLink:
				cur.Write(node.Label(src))
			case *ast.RawHTML:
				// markup carries no display text
			default:
				walk(c)
			}
		}
	}
	walk(n)
	if cur.Len() > 0 || len(lines) == 0 {
		flush()
	}
	return lines
}
