package driver

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// RawElement is one parsed top-level (or nested) XML element from the
// inbound stream. §1 treats the tokeniser itself (parse_element,
// element_children, attribute_value) as an out-of-scope external
// collaborator with a stable contract; RawElement and ElementSource are
// that contract, and elementSource below is its default implementation
// built on the standard library's encoding/xml (see DESIGN.md).
type RawElement struct {
	Tag      string
	Attrs    map[string]string
	Children []RawElement
	Body     string
}

// Attr returns the named attribute's value and whether it was present.
func (e *RawElement) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// ElementSource yields one top-level inbound XML element at a time.
type ElementSource interface {
	Next() (*RawElement, error)
}

type elementSource struct {
	dec *xml.Decoder
}

// NewElementSource wraps r as a stream of top-level XML elements. There is
// no XML prologue on the wire (§6); elements are read back to back.
func NewElementSource(r io.Reader) ElementSource {
	return &elementSource{dec: xml.NewDecoder(r)}
}

func (s *elementSource) Next() (*RawElement, error) {
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		return decodeElement(s.dec, start)
	}
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (*RawElement, error) {
	el := &RawElement{
		Tag:   start.Name.Local,
		Attrs: make(map[string]string, len(start.Attr)),
	}
	for _, a := range start.Attr {
		el.Attrs[a.Name.Local] = a.Value
	}

	var body strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			body.Write(t)
		case xml.StartElement:
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, *child)
		case xml.EndElement:
			el.Body = strings.TrimSpace(body.String())
			return el, nil
		}
	}
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func attrf(name, value string) string {
	return fmt.Sprintf(` %s="%s"`, name, escapeXML(value))
}
