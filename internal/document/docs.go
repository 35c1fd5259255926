// Package document normalizes provider document content into types.Block sequences.
package document

import (
	"encoding/json"
	"strings"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// The structs below mirror the subset of the Google Docs v1 Document resource
// that carries display text. Everything else in the response is ignored.

type docsDocument struct {
	Body *docsBody `json:"body"`
}

type docsBody struct {
	Content []docsStructuralElement `json:"content"`
}

type docsStructuralElement struct {
	Paragraph *docsParagraph `json:"paragraph"`
}

type docsParagraph struct {
	Elements       []docsParagraphElement `json:"elements"`
	ParagraphStyle *docsParagraphStyle    `json:"paragraphStyle"`
}

type docsParagraphStyle struct {
	NamedStyleType string `json:"namedStyleType"`
}

type docsParagraphElement struct {
	TextRun *struct {
		Content string `json:"content"`
	} `json:"textRun"`
	DateElement *struct {
		DateElementProperties *struct {
			DisplayText string `json:"displayText"`
		} `json:"dateElementProperties"`
	} `json:"dateElement"`
	RichLink *struct {
		RichLinkProperties *struct {
			Title string `json:"title"`
		} `json:"richLinkProperties"`
	} `json:"richLink"`
	Person *struct {
		PersonProperties *struct {
			Name string `json:"name"`
		} `json:"personProperties"`
	} `json:"person"`
}

// ParseDocsJSON converts a Docs API documents.get response body into blocks.
// Malformed or absent structure yields an empty slice, never an error.
func ParseDocsJSON(raw []byte) []types.Block {
	var doc docsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []types.Block{}
	}
	if doc.Body == nil {
		return []types.Block{}
	}

	blocks := make([]types.Block, 0, len(doc.Body.Content))
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			// sectionBreak, table, tableOfContents
			blocks = append(blocks, types.NewOther())
			continue
		}
		blocks = append(blocks, paragraphBlock(el.Paragraph))
	}
	return blocks
}

func paragraphBlock(p *docsParagraph) types.Block {
	text := paragraphText(p)
	style := ""
	if p.ParagraphStyle != nil {
		style = p.ParagraphStyle.NamedStyleType
	}
	return types.NewHeading(text, types.RankForStyle(style))
}

// paragraphText joins the visible text of every inline element in order.
// Smart chips contribute their display text; unknown elements contribute nothing.
func paragraphText(p *docsParagraph) string {
	var sb strings.Builder
	for _, el := range p.Elements {
		switch {
		case el.TextRun != nil:
			sb.WriteString(el.TextRun.Content)
		case el.DateElement != nil:
			if props := el.DateElement.DateElementProperties; props != nil {
				sb.WriteString(props.DisplayText)
			}
		case el.RichLink != nil:
			if props := el.RichLink.RichLinkProperties; props != nil {
				sb.WriteString(props.Title)
			}
		case el.Person != nil:
			if props := el.Person.PersonProperties; props != nil {
				sb.WriteString(props.Name)
			}
		}
	}
	return strings.TrimSpace(sb.String())
}
