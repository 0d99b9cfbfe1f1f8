package xmlbroker

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const decl = `<?xml version="1.0" encoding="UTF-8"?>`

func TestXMLCodec_Encode(t *testing.T) {
	c := XMLCodec{}

	t.Run("Compact", func(t *testing.T) {
		got, err := c.Encode(strings.NewReader("<a><b>1</b></a>"))
		require.NoError(t, err)
		assert.Equal(t, decl+"<a><b>1</b></a>", got)
	})

	t.Run("StripsFormatting", func(t *testing.T) {
		in := "<?xml version=\"1.0\"?>\n<a>\n  <b>1</b>\n  <c x=\"y\"/>\n</a>\n"
		got, err := c.Encode(strings.NewReader(in))
		require.NoError(t, err)
		assert.Equal(t, decl+`<a><b>1</b><c x="y"/></a>`, got)
	})

	t.Run("KeepsTextAndEscapes", func(t *testing.T) {
		got, err := c.Encode(strings.NewReader(`<a note="x &amp; y">1 &lt; 2</a>`))
		require.NoError(t, err)
		assert.Contains(t, got, "1 &lt; 2")
		assert.Contains(t, got, `note="x &amp; y"`)
	})

	t.Run("Latin1", func(t *testing.T) {
		in := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a>caf\xe9</a>"
		got, err := c.Encode(strings.NewReader(in))
		require.NoError(t, err)
		assert.Equal(t, decl+"<a>café</a>", got)
	})

	t.Run("Indent", func(t *testing.T) {
		got, err := XMLCodec{Indent: 2}.Encode(strings.NewReader("<a><b>1</b></a>"))
		require.NoError(t, err)
		assert.Contains(t, got, "\n  <b>1</b>\n")
	})
}

func TestXMLCodec_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"Empty", ""},
		{"Whitespace", "  \n "},
		{"Unclosed", "<unclosed>"},
		{"Mismatched", "<a></b>"},
		{"MultipleRoots", "<a/><b/>"},
		{"TextOutsideRoot", "<a/>trailing"},
		{"PlainText", "hello"},
		{"UndefinedEntity", "<a>&nope;</a>"},
		{"DuplicateAttribute", `<a x="1" x="2"/>`},
		{"DuplicateNestedAttribute", `<a><b y="1" z="2" y="3"/></a>`},
		{"DuplicatePrefixedAttribute", `<a xmlns:p="urn:p" p:x="1" p:x="2"/>`},
		{"SecondDeclaration", `<?xml version="1.0"?><?xml version="1.0"?><a/>`},
		{"DeclarationAfterComment", `<!-- c --><?xml version="1.0"?><a/>`},
		{"DeclarationInsideRoot", `<a><?xml version="1.0"?></a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := XMLCodec{}.Encode(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, ErrMalformedDocument)

			_, err = XMLCodec{}.Decode(tt.in)
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestXMLCodec_ReadFailure(t *testing.T) {
	_, err := XMLCodec{}.Encode(failingReader{})
	assert.ErrorIs(t, err, ErrMalformedDocument)

	_, err = XMLCodec{}.Encode(nil)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestXMLCodec_FixedPoint(t *testing.T) {
	docs := []string{
		"<a><b>1</b></a>",
		"<?xml version=\"1.0\"?>\n<order id=\"7\">\n\t<item qty=\"2\">widget</item>\n</order>",
		`<ns:a xmlns:ns="urn:x"><ns:b/></ns:a>`,
		"<!-- header --><a>text <b>mixed</b> tail</a>",
		`<a xmlns:p="urn:p" x="1" p:x="2"/>`,
	}
	c := XMLCodec{}
	for _, doc := range docs {
		once, err := c.Encode(strings.NewReader(doc))
		require.NoError(t, err, doc)

		twice, err := c.Encode(strings.NewReader(once))
		require.NoError(t, err)
		assert.Equal(t, once, twice)

		decoded, err := c.Decode(once)
		require.NoError(t, err)
		assert.Equal(t, once, decoded)
	}
}

func TestXMLCodec_String(t *testing.T) {
	assert.Equal(t, "xml", XMLCodec{}.String())
}
