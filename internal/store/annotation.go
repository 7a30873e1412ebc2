package store

import (
	"encoding/json"
	"html"
	"strings"
)

// Title is the document title, or "" when the annotation has none.
func (a Annotation) Title() string {
	if a.Document == nil {
		return ""
	}
	return a.Document.Title
}

// ReferenceIDs returns the thread ancestors, root first. Anything other than
// a JSON array of strings yields nil.
func (a Annotation) ReferenceIDs() []string {
	if len(a.References) == 0 {
		return nil
	}
	var refs []string
	if err := json.Unmarshal(a.References, &refs); err != nil {
		return nil
	}
	return refs
}

// ParentID is the immediate parent in the thread, the last reference.
func (a Annotation) ParentID() (string, bool) {
	refs := a.ReferenceIDs()
	if len(refs) == 0 {
		return "", false
	}
	return refs[len(refs)-1], true
}

// Quote is the first exact selector text across all targets.
func (a Annotation) Quote() string {
	for _, target := range a.Targets {
		for _, selector := range target.Selector {
			if selector.Exact != "" {
				return selector.Exact
			}
		}
	}
	return ""
}

// Description is the HTML-escaped quote and body used by feeds.
func (a Annotation) Description() string {
	var b strings.Builder
	if quote := a.Quote(); quote != "" {
		b.WriteString(html.EscapeString("<blockquote>" + quote + "</blockquote>"))
	}
	b.WriteString(a.Text)
	return b.String()
}

// CreatedDay formats the creation date as YYYY-MM-DD in its own offset.
func (a Annotation) CreatedDay() string {
	if a.Created.IsZero() {
		return ""
	}
	return a.Created.Format("2006-01-02")
}

func (a Annotation) TargetLinks() []string {
	links := make([]string, 0, len(a.Targets))
	for _, target := range a.Targets {
		if target.Source != "" {
			links = append(links, target.Source)
		}
	}
	return links
}

// DocumentLink renders the title linked to the target URI. Only http(s) URIs
// are linked; everything is escaped.
func (a Annotation) DocumentLink() string {
	title := a.Title()
	uri := a.TargetURI
	linkable := strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")

	if title == "" {
		title = uri
	}
	if !linkable {
		return html.EscapeString(title)
	}
	return `<a href="` + html.EscapeString(uri) + `">` + html.EscapeString(title) + `</a>`
}
