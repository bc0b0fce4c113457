package agent

import (
	"fmt"
	"strings"
)

// Citation is a source the grounding tool attributed part of a reply to.
type Citation struct {
	Title  string
	URL    string
	FileID string
}

func (c Citation) marker() string {
	switch {
	case c.URL != "" && c.Title != "":
		return fmt.Sprintf(" [Source: %s (%s)]", c.Title, c.URL)
	case c.URL != "":
		return fmt.Sprintf(" [Source: %s]", c.URL)
	default:
		return fmt.Sprintf(" [Source: %s]", c.FileID)
	}
}

// RenderMessage concatenates the text segments of m in order. Each segment is
// followed by one bracketed source marker per citation annotation it carries.
func RenderMessage(m Message) (string, []Citation) {
	var sb strings.Builder
	var citations []Citation
	for _, content := range m.Content {
		if content.Type != "text" || content.Text == nil {
			continue
		}
		sb.WriteString(content.Text.Value)
		for _, a := range content.Text.Annotations {
			c, ok := citationOf(a)
			if !ok {
				continue
			}
			sb.WriteString(c.marker())
			citations = append(citations, c)
		}
	}
	return sb.String(), citations
}

func citationOf(a Annotation) (Citation, bool) {
	switch {
	case a.URLCitation != nil && a.URLCitation.URL != "":
		return Citation{Title: a.URLCitation.Title, URL: a.URLCitation.URL}, true
	case a.FileCitation != nil && a.FileCitation.FileID != "":
		return Citation{FileID: a.FileCitation.FileID}, true
	}
	return Citation{}, false
}
