// Package xmlutil parses and serializes the tagged-variant XML tree
// (model.Node) used by asset bodies and the MTConnect response
// documents. No example repo in this lineage touches XML, so this
// package is a deliberate standard-library-only exception — see
// DESIGN.md for the justification.
package xmlutil

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

// ParseXML decodes a single-rooted XML fragment into a Node tree.
// Whitespace-only character data between elements is dropped.
func ParseXML(raw string) (*model.Node, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("xmlutil: empty body")
	}

	dec := xml.NewDecoder(strings.NewReader(raw))
	var stack []*model.Node
	var root *model.Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmlutil: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &model.Node{Name: t.Name.Local, Attrs: map[string]string{}}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) == "" || len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &model.Node{IsText: true, Text: text})
		}
	}

	if root == nil {
		return nil, fmt.Errorf("xmlutil: no root element")
	}
	return root, nil
}

// WriteNode serializes a Node tree back to an XML fragment. Attribute
// order is not preserved from the source (Node stores them in a map);
// they are emitted sorted by name for deterministic output.
func WriteNode(n *model.Node) string {
	var b strings.Builder
	writeNode(&b, n)
	return b.String()
}

func writeNode(b *strings.Builder, n *model.Node) {
	if n == nil {
		return
	}
	if n.IsText {
		b.WriteString(xmlEscape(n.Text))
		return
	}

	b.WriteString("<" + n.Name)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, ` %s="%s"`, k, xmlEscape(n.Attrs[k]))
	}

	if len(n.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteString(">")
	for _, c := range n.Children {
		writeNode(b, c)
	}
	fmt.Fprintf(b, "</%s>", n.Name)
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
