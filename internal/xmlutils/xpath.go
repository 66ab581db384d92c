// Package xmlutils provides the XPath helpers used to read CAMT.053 statements.
package xmlutils

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/xmlpath.v2"
)

var (
	pathsMu sync.Mutex
	paths   = map[string]*xmlpath.Path{}
)

// Parse reads an XML document and returns its root node.
func Parse(r io.Reader) (*xmlpath.Node, error) {
	root, err := xmlpath.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return root, nil
}

// compile returns a cached compiled path. Paths are package constants, so a
// compile error is a programming error.
func compile(xpath string) *xmlpath.Path {
	pathsMu.Lock()
	defer pathsMu.Unlock()
	p, ok := paths[xpath]
	if !ok {
		p = xmlpath.MustCompile(xpath)
		paths[xpath] = p
	}
	return p
}

// Nodes returns every node matching xpath under node.
func Nodes(node *xmlpath.Node, xpath string) []*xmlpath.Node {
	var nodes []*xmlpath.Node
	iter := compile(xpath).Iter(node)
	for iter.Next() {
		nodes = append(nodes, iter.Node())
	}
	return nodes
}

// Value returns the cleaned text of the first match, or "".
func Value(node *xmlpath.Node, xpath string) string {
	s, ok := compile(xpath).String(node)
	if !ok {
		return ""
	}
	return CleanText(s)
}

// Values returns the cleaned, non-empty text of every match.
func Values(node *xmlpath.Node, xpath string) []string {
	var values []string
	for _, n := range Nodes(node, xpath) {
		if v := CleanText(n.String()); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// FirstOf returns the first non-empty Value among xpaths.
func FirstOf(node *xmlpath.Node, xpaths ...string) string {
	for _, xpath := range xpaths {
		if v := Value(node, xpath); v != "" {
			return v
		}
	}
	return ""
}

var noisePrefixes = []string{
	"Remittance Info: ",
	"Remittance Information: ",
	"Additional Entry Info: ",
	"Additional Transaction Info: ",
	"Details: ",
}

// CleanText collapses whitespace and strips the labels some banks prepend to
// free-text fields.
func CleanText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	for _, prefix := range noisePrefixes {
		text = strings.TrimPrefix(text, prefix)
	}
	return text
}
