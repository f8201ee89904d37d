package xmlfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://example.com/feed">
  <meta><generated>2024-01-02</generated></meta>
  <properties>
    <property>
      <id>P-1</id>
      <title>The &quot;Hub&quot; &amp; Annex</title>
      <types>
        <type id="4">Office</type>
        <type id="7" name="Retail"/>
      </types>
      <images>
        <image>https://cdn.example.com/a.jpg</image>
        <image>https://cdn.example.com/b.jpg</image>
      </images>
      <brochure type="15">https://cdn.example.com/brochure.pdf</brochure>
      <rent unit="psf">25</rent>
    </property>
    <property>
      <id>P-2</id>
      <images><image>https://cdn.example.com/c.jpg</image></images>
    </property>
  </properties>
</feed>`

func TestParse(t *testing.T) {
	t.Run("should build the node tree", func(t *testing.T) {
		root, err := Parse([]byte(sampleFeed))
		require.NoError(t, err)
		assert.Equal(t, "feed", root.Name)
		require.NotNil(t, root.Child("properties"))
		assert.Len(t, root.Child("properties").Children, 2)
	})

	t.Run("should reject empty input", func(t *testing.T) {
		_, err := Parse([]byte("   \n"))
		assert.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("should reject a document without a root element", func(t *testing.T) {
		_, err := Parse([]byte(`<?xml version="1.0"?>`))
		assert.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("should reject multiple root elements", func(t *testing.T) {
		_, err := Parse([]byte(`<a/><b/>`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "multiple root elements")
	})

	t.Run("should reject unclosed elements", func(t *testing.T) {
		_, err := Parse([]byte(`<feed><property><id>1</id>`))
		assert.Error(t, err)
	})

	t.Run("should decode a declared legacy charset", func(t *testing.T) {
		doc := "<?xml version=\"1.0\" encoding=\"windows-1252\"?><feed><price>\xa3100</price></feed>"
		root, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, "£100", root.Child("price").Text)
	})

	t.Run("should repair undeclared non-utf8 bytes", func(t *testing.T) {
		doc := "<feed><price>\xa3250</price></feed>"
		root, err := Parse([]byte(doc))
		require.NoError(t, err)
		assert.Equal(t, "£250", root.Child("price").Text)
	})

	t.Run("should resolve html entities", func(t *testing.T) {
		root, err := Parse([]byte(`<feed><price>&pound;5&nbsp;psf</price></feed>`))
		require.NoError(t, err)
		assert.Equal(t, "£5\u00a0psf", root.Child("price").Text)
	})

	t.Run("should drop namespace declarations from attributes", func(t *testing.T) {
		root, err := Parse([]byte(sampleFeed))
		require.NoError(t, err)
		assert.Empty(t, root.Attrs)
	})
}

func TestItems(t *testing.T) {
	root, err := Parse([]byte(sampleFeed))
	require.NoError(t, err)

	t.Run("should find items at the shallowest depth", func(t *testing.T) {
		items := Items(root, "property")
		require.Len(t, items, 2)
		assert.Equal(t, "P-1", items[0].Child("id").Text)
		assert.Equal(t, "P-2", items[1].Child("id").Text)
	})

	t.Run("should default to the root children", func(t *testing.T) {
		items := Items(root, "")
		require.Len(t, items, 2)
		assert.Equal(t, "meta", items[0].Name)
	})

	t.Run("should return nothing for an unknown item name", func(t *testing.T) {
		assert.Empty(t, Items(root, "listing"))
	})

	t.Run("should not descend into matched items", func(t *testing.T) {
		nested, err := Parse([]byte(`<feed><item><id>1</id><item><id>inner</id></item></item></feed>`))
		require.NoError(t, err)
		items := Items(nested, "item")
		require.Len(t, items, 1)
		assert.Equal(t, "1", items[0].Child("id").Text)
	})
}

func TestExtract(t *testing.T) {
	root, err := Parse([]byte(sampleFeed))
	require.NoError(t, err)
	items := Items(root, "property")
	require.Len(t, items, 2)

	em := Extract(items[0])

	t.Run("should transcribe leaf text", func(t *testing.T) {
		assert.Equal(t, "P-1", em["id"])
		assert.Equal(t, `The "Hub" & Annex`, em["title"])
	})

	t.Run("should collect repeated siblings into a list", func(t *testing.T) {
		images, ok := em["images"].(ElementMap)
		require.True(t, ok)
		list, ok := images["image"].([]any)
		require.True(t, ok)
		assert.Equal(t, []any{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"}, list)
	})

	t.Run("should keep a single child unwrapped", func(t *testing.T) {
		images, ok := Extract(items[1])["images"].(ElementMap)
		require.True(t, ok)
		assert.Equal(t, "https://cdn.example.com/c.jpg", images["image"])
	})

	t.Run("should turn taxonomy terms into name and id", func(t *testing.T) {
		types := em["types"].(ElementMap)["type"].([]any)
		assert.Equal(t, ElementMap{"name": "Office", "id": "4"}, types[0])
		assert.Equal(t, ElementMap{"name": "Retail", "id": "7"}, types[1])
	})

	t.Run("should keep attributes with a url value", func(t *testing.T) {
		assert.Equal(t, ElementMap{"type": "15", "url": "https://cdn.example.com/brochure.pdf"}, em["brochure"])
	})

	t.Run("should keep attributes with a plain value", func(t *testing.T) {
		assert.Equal(t, ElementMap{"unit": "psf", "value": "25"}, em["rent"])
	})

	t.Run("should decode literal unicode escapes", func(t *testing.T) {
		n, err := Parse([]byte(`<property><title>Caf\u00e9 Quarter</title></property>`))
		require.NoError(t, err)
		assert.Equal(t, "Café Quarter", Extract(n)["title"])
	})

	t.Run("should return an empty map for nil", func(t *testing.T) {
		assert.Empty(t, Extract(nil))
	})
}

func TestOneOrMany(t *testing.T) {
	t.Run("should wrap a single value", func(t *testing.T) {
		assert.Equal(t, []any{"a"}, OneOrMany("a"))
		assert.Equal(t, []any{ElementMap{"k": "v"}}, OneOrMany(ElementMap{"k": "v"}))
	})

	t.Run("should pass lists through", func(t *testing.T) {
		assert.Equal(t, []any{"a", "b"}, OneOrMany([]any{"a", "b"}))
	})

	t.Run("should drop blank and missing values", func(t *testing.T) {
		assert.Nil(t, OneOrMany(nil))
		assert.Nil(t, OneOrMany("  "))
	})
}

func TestChildren(t *testing.T) {
	t.Run("should unwrap the named child", func(t *testing.T) {
		wrapper := ElementMap{"type": []any{"Office", "Retail"}}
		assert.Equal(t, []any{"Office", "Retail"}, Children(wrapper, "type"))
	})

	t.Run("should unwrap a sole child with another name", func(t *testing.T) {
		wrapper := ElementMap{"category": "Industrial"}
		assert.Equal(t, []any{"Industrial"}, Children(wrapper, "type"))
	})

	t.Run("should treat a multi-key map as one child", func(t *testing.T) {
		wrapper := ElementMap{"name": "Jane", "email": "jane@example.com"}
		assert.Equal(t, []any{wrapper}, Children(wrapper, "contact"))
	})

	t.Run("should treat a bare string as a single child", func(t *testing.T) {
		assert.Equal(t, []any{"Office"}, Children("Office", "type"))
	})
}
