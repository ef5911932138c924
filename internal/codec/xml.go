package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/commercekit/dataport/internal/adapter"
	"github.com/commercekit/dataport/internal/profile"
	"github.com/commercekit/dataport/internal/transform"
)

const xmlProlog = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// XMLCodec is the tree codec: each record renders as one element mirroring
// the profile tree's primary iteration subtree, attribute nodes as XML
// attributes, nested iteration nodes as repeated elements. The opening
// envelope is written with the first batch and closed by Close, so chunked
// runs can append record elements in between.
type XMLCodec struct {
	path      string
	tree      *profile.Tree
	iteration *profile.Node
	envelope  []string
}

// NewXMLCodec builds an XML codec over the given file path.
func NewXMLCodec(tree *profile.Tree, path string) (*XMLCodec, error) {
	its := tree.Iterations()
	if len(its) == 0 {
		return nil, fmt.Errorf("xml codec needs a profile tree with an iteration node")
	}
	it := its[0]

	var envelope []string
	for p := it.Parent(); p != nil && p.ID != profile.RootID; p = p.Parent() {
		envelope = append([]string{p.Name}, envelope...)
	}
	return &XMLCodec{path: path, tree: tree, iteration: it, envelope: envelope}, nil
}

// HasTreeStructure reports nested input.
func (c *XMLCodec) HasTreeStructure() bool { return true }

// AppendBatch writes record elements to the end of the file, emitting the
// prolog and opening envelope once when the file starts empty.
func (c *XMLCodec) AppendBatch(records []adapter.Record) error {
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", c.path, err)
	}
	if info.Size() == 0 {
		if _, err := io.WriteString(f, c.composeHeader()); err != nil {
			return fmt.Errorf("write xml header: %w", err)
		}
	}

	var buf bytes.Buffer
	for _, rec := range records {
		enc := xml.NewEncoder(&buf)
		if err := c.encodeNode(enc, c.iteration, rec); err != nil {
			return fmt.Errorf("encode xml record: %w", err)
		}
		if err := enc.Flush(); err != nil {
			return fmt.Errorf("encode xml record: %w", err)
		}
		buf.WriteByte('\n')
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write xml records: %w", err)
	}
	return nil
}

func (c *XMLCodec) composeHeader() string {
	var b strings.Builder
	b.WriteString(xmlProlog)
	for _, name := range c.envelope {
		b.WriteString("<" + name + ">\n")
	}
	return b.String()
}

func (c *XMLCodec) composeFooter() string {
	var b strings.Builder
	for i := len(c.envelope) - 1; i >= 0; i-- {
		b.WriteString("</" + c.envelope[i] + ">\n")
	}
	return b.String()
}

func (c *XMLCodec) encodeNode(enc *xml.Encoder, node *profile.Node, rec adapter.Record) error {
	start := xml.StartElement{Name: xml.Name{Local: node.Name}}
	for _, a := range node.Attributes() {
		if v, ok := rec[transform.AttributePrefix+a.Name]; ok {
			start.Attr = append(start.Attr, xml.Attr{
				Name:  xml.Name{Local: a.Name},
				Value: valueString(v),
			})
		}
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	for _, ch := range node.Children() {
		switch ch.Kind {
		case profile.KindLeaf:
			el := xml.StartElement{Name: xml.Name{Local: ch.Name}}
			if err := enc.EncodeToken(el); err != nil {
				return err
			}
			if v, ok := rec[ch.Name]; ok {
				if err := enc.EncodeToken(xml.CharData(valueString(v))); err != nil {
					return err
				}
			}
			if err := enc.EncodeToken(el.End()); err != nil {
				return err
			}
		case profile.KindNode:
			sub, _ := rec[ch.Name].(adapter.Record)
			if err := c.encodeNode(enc, ch, sub); err != nil {
				return err
			}
		case profile.KindIteration:
			rows, _ := rec[ch.Name].([]adapter.Record)
			for _, row := range rows {
				if err := c.encodeNode(enc, ch, row); err != nil {
					return err
				}
			}
		}
	}
	return enc.EncodeToken(start.End())
}

// Close writes the closing envelope. Closing an untouched or already closed
// file is a no-op, so the workflow can call it unconditionally.
func (c *XMLCodec) Close() error {
	info, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", c.path, err)
	}
	if info.Size() == 0 {
		return nil
	}

	footer := c.composeFooter()
	if footer == "" {
		return nil
	}
	closed, err := c.hasSuffix(footer)
	if err != nil {
		return err
	}
	if closed {
		return nil
	}

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, footer); err != nil {
		return fmt.Errorf("write xml footer: %w", err)
	}
	return nil
}

func (c *XMLCodec) hasSuffix(suffix string) (bool, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", c.path, err)
	}
	if info.Size() < int64(len(suffix)) {
		return false, nil
	}
	buf := make([]byte, len(suffix))
	if _, err := f.ReadAt(buf, info.Size()-int64(len(suffix))); err != nil {
		return false, fmt.Errorf("read %s: %w", c.path, err)
	}
	return string(buf) == suffix, nil
}

// xmlElem is the generic decoded shape of one element.
type xmlElem struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []xmlElem  `xml:",any"`
}

// ReadBatch returns up to limit records starting at offset, and whether the
// file holds no records past the window.
func (c *XMLCodec) ReadBatch(offset, limit int) ([]adapter.Record, bool, error) {
	var out []adapter.Record
	seen := 0
	exhausted := true

	err := c.scan(func(el xmlElem) (bool, error) {
		if seen < offset {
			seen++
			return true, nil
		}
		if len(out) >= limit {
			exhausted = false
			return false, nil
		}
		out = append(out, c.mapElement(c.iteration, el))
		seen++
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, exhausted, nil
}

// TotalCount streams the file and counts top-level record elements.
func (c *XMLCodec) TotalCount() (int, error) {
	count := 0
	err := c.scan(func(xmlElem) (bool, error) {
		count++
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// scan streams the file, decoding each record element and handing it to fn
// until fn stops the scan or the file ends.
func (c *XMLCodec) scan(fn func(xmlElem) (bool, error)) error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	dec := xml.NewDecoder(skipBOM(f))
	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("parse %s: %w", c.path, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != c.iteration.Name {
			continue
		}
		var el xmlElem
		if err := dec.DecodeElement(&el, &start); err != nil {
			return fmt.Errorf("parse %s: %w", c.path, err)
		}
		cont, err := fn(el)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

func (c *XMLCodec) mapElement(node *profile.Node, el xmlElem) adapter.Record {
	rec := make(adapter.Record)
	for _, a := range node.Attributes() {
		for _, attr := range el.Attrs {
			if attr.Name.Local == a.Name {
				rec[transform.AttributePrefix+a.Name] = attr.Value
			}
		}
	}
	for _, ch := range node.Children() {
		switch ch.Kind {
		case profile.KindLeaf:
			if sub := findChild(el, ch.Name); sub != nil {
				rec[ch.Name] = strings.TrimSpace(sub.Content)
			}
		case profile.KindNode:
			if sub := findChild(el, ch.Name); sub != nil {
				rec[ch.Name] = c.mapElement(ch, *sub)
			}
		case profile.KindIteration:
			var group []adapter.Record
			for i := range el.Nodes {
				if el.Nodes[i].XMLName.Local == ch.Name {
					group = append(group, c.mapElement(ch, el.Nodes[i]))
				}
			}
			if group != nil {
				rec[ch.Name] = group
			}
		}
	}
	return rec
}

func findChild(el xmlElem, name string) *xmlElem {
	for i := range el.Nodes {
		if el.Nodes[i].XMLName.Local == name {
			return &el.Nodes[i]
		}
	}
	return nil
}
