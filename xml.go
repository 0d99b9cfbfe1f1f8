package xmlbroker

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

const xmlDeclaration = `version="1.0" encoding="UTF-8"`

// XMLCodec parses a document and re-serializes it in canonical form: an
// XML declaration, the root element, no formatting whitespace. Elements,
// attributes and text survive the round trip; comments and doctype
// declarations outside the root do not.
type XMLCodec struct {
	// Indent pretty-prints with this many spaces per level. Zero keeps the
	// compact wire form.
	Indent int
}

// Encode reads a whole document from r. Unreadable streams and documents
// that are not well-formed fail with KindMalformedDocument.
func (c XMLCodec) Encode(r io.Reader) (string, error) {
	if r == nil {
		return "", Errorf(KindMalformedDocument, "encode", "no document stream")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", NewError(KindMalformedDocument, "encode", fmt.Errorf("read document: %w", err))
	}
	return c.canonicalize("encode", data)
}

// Decode validates and normalizes a document read off the wire.
func (c XMLCodec) Decode(s string) (string, error) {
	return c.canonicalize("decode", []byte(s))
}

func (c XMLCodec) String() string {
	return "xml"
}

func (c XMLCodec) canonicalize(op string, data []byte) (string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	doc.ReadSettings.PreserveDuplicateAttrs = true
	if err := doc.ReadFromBytes(data); err != nil {
		return "", NewError(KindMalformedDocument, op, err)
	}

	root, err := documentRoot(doc)
	if err != nil {
		return "", NewError(KindMalformedDocument, op, err)
	}

	out := etree.NewDocument()
	out.WriteSettings = etree.WriteSettings{
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	out.CreateProcInst("xml", xmlDeclaration)
	out.SetRoot(root.Copy())
	if c.Indent > 0 {
		out.Indent(c.Indent)
	} else {
		out.Unindent()
	}

	s, err := out.WriteToString()
	if err != nil {
		return "", NewError(KindMalformedDocument, op, err)
	}
	return s, nil
}

// documentRoot enforces the well-formedness rules the parser itself does
// not check: one root element, no text outside it, the XML declaration only
// at the start, and unique attribute names.
func documentRoot(doc *etree.Document) (*etree.Element, error) {
	var root *etree.Element
	for i, t := range doc.Child {
		switch t := t.(type) {
		case *etree.ProcInst:
			if isDeclaration(t) && i != 0 {
				return nil, errors.New("XML declaration not at the start of the document")
			}
		case *etree.Element:
			if root != nil {
				return nil, errors.New("multiple root elements")
			}
			root = t
		case *etree.CharData:
			if !t.IsWhitespace() {
				return nil, errors.New("character data outside the root element")
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	if err := checkElement(root); err != nil {
		return nil, err
	}
	return root, nil
}

func checkElement(e *etree.Element) error {
	for i := range e.Attr {
		for j := i + 1; j < len(e.Attr); j++ {
			if e.Attr[i].Space == e.Attr[j].Space && e.Attr[i].Key == e.Attr[j].Key {
				return fmt.Errorf("element <%s>: duplicate attribute %q", e.FullTag(), e.Attr[i].FullKey())
			}
		}
	}
	for _, t := range e.Child {
		switch t := t.(type) {
		case *etree.ProcInst:
			if isDeclaration(t) {
				return errors.New("XML declaration inside an element")
			}
		case *etree.Element:
			if err := checkElement(t); err != nil {
				return err
			}
		}
	}
	return nil
}

func isDeclaration(p *etree.ProcInst) bool {
	return strings.EqualFold(p.Target, "xml")
}
