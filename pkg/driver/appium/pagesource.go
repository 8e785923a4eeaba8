package appium

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// SourceElement is one node of an Android UiAutomator2 page source.
type SourceElement struct {
	Class       string
	Package     string
	Text        string
	ContentDesc string
	ResourceID  string
	Bounds      string // "[x1,y1][x2,y2]"
	Focused     bool
	Displayed   bool
	Depth       int
}

// Label returns the text a user would read for the element.
func (e *SourceElement) Label() string {
	if e.Text != "" {
		return e.Text
	}
	return e.ContentDesc
}

// ParsePageSource decodes an Android hierarchy dump into a flat list of
// elements in document order.
func ParsePageSource(xmlData string) ([]*SourceElement, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))

	var elements []*SourceElement
	foundHierarchy := false
	depth := 0

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(elements) > 0 {
				// Truncated dumps still carry useful nodes
				break
			}
			return nil, fmt.Errorf("parse page source: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "hierarchy" {
				foundHierarchy = true
				continue
			}
			depth++
			elem := &SourceElement{Class: t.Name.Local, Displayed: true, Depth: depth}
			for _, attr := range t.Attr {
				switch attr.Name.Local {
				case "class":
					elem.Class = attr.Value
				case "package":
					elem.Package = attr.Value
				case "text":
					elem.Text = attr.Value
				case "content-desc":
					elem.ContentDesc = attr.Value
				case "resource-id":
					elem.ResourceID = attr.Value
				case "bounds":
					elem.Bounds = attr.Value
				case "focused":
					elem.Focused = attr.Value == "true"
				case "displayed":
					elem.Displayed = attr.Value != "false"
				}
			}
			elements = append(elements, elem)
		case xml.EndElement:
			if t.Name.Local != "hierarchy" {
				depth--
			}
		}
	}

	if !foundHierarchy {
		return nil, fmt.Errorf("invalid page source: no hierarchy element found")
	}
	return elements, nil
}

// VisibleTexts returns the non-empty labels of displayed elements, deduplicated
// in document order.
func VisibleTexts(elements []*SourceElement) []string {
	seen := make(map[string]bool)
	var texts []string
	for _, e := range elements {
		label := strings.TrimSpace(e.Label())
		if !e.Displayed || label == "" || seen[label] {
			continue
		}
		seen[label] = true
		texts = append(texts, label)
	}
	return texts
}

// FocusedInSource returns the focused element of a parsed page source, or nil.
func FocusedInSource(elements []*SourceElement) *SourceElement {
	for _, e := range elements {
		if e.Focused {
			return e
		}
	}
	return nil
}

// Snippet returns at most limit characters (runes) of the page source.
// limit <= 0 returns the whole source.
func Snippet(source string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(source) <= limit {
		return source
	}
	n := 0
	for i := range source {
		if n == limit {
			return source[:i]
		}
		n++
	}
	return source
}
