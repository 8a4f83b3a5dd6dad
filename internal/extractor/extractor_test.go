package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/property-crawler/internal/models"
	"github.com/maltedev/property-crawler/internal/parser"
)

const listingPage = `<html><body>
<ul>
  <li class="listing">
    <a class="link" href="/item/house-in-dha-1"><h2 class="title">House in DHA
      Phase 6</h2></a>
    <span class="price">Rs 4.5 Crore</span>
    <span class="location">DHA Defence, Karachi</span>
    <span class="beds">5</span>
  </li>
  <li class="listing">
    <h2 class="title">Flat in Clifton</h2>
    <span class="price">   </span>
    <span class="location">Clifton, Karachi</span>
  </li>
</ul>
</body></html>`

var fields = map[string]string{
	models.FieldName:     "h2.title",
	models.FieldPrice:    "span.price",
	models.FieldAddress:  "span.location",
	models.FieldBedrooms: "span.beds",
	models.FieldURL:      "a.link@href",
}

func TestExtractAll(t *testing.T) {
	doc, err := parser.Parse([]byte(listingPage), "text/html", "https://www.example.com/houses")
	require.NoError(t, err)

	e := New("li.listing", fields)
	listings := e.ExtractAll(doc)
	require.Len(t, listings, 2)

	first := listings[0]
	assert.Equal(t, models.RawListing{
		models.FieldName:     "House in DHA Phase 6",
		models.FieldPrice:    "Rs 4.5 Crore",
		models.FieldAddress:  "DHA Defence, Karachi",
		models.FieldBedrooms: "5",
		models.FieldURL:      "/item/house-in-dha-1",
	}, first)
	assert.Empty(t, first.Missing())

	second := listings[1]
	_, hasPrice := second.Get(models.FieldPrice)
	assert.False(t, hasPrice, "whitespace-only price must be absent")
	_, hasURL := second.Get(models.FieldURL)
	assert.False(t, hasURL)
	assert.Equal(t, []string{models.FieldPrice}, second.Missing())
	assert.Equal(t, "Flat in Clifton", second[models.FieldName])
}

func TestExtractNeverFails(t *testing.T) {
	doc, err := parser.Parse([]byte(`<html><body><div class="listing"></div></body></html>`), "text/html", "https://www.example.com/")
	require.NoError(t, err)

	e := New("div.listing", fields)
	listings := e.ExtractAll(doc)
	require.Len(t, listings, 1)
	assert.Empty(t, listings[0])
	assert.ElementsMatch(t, models.RequiredFields, listings[0].Missing())
}

func TestExtractNoBlocks(t *testing.T) {
	doc, err := parser.Parse([]byte(`<html><body><p>nothing here</p></body></html>`), "text/html", "https://www.example.com/")
	require.NoError(t, err)

	e := New("div.listing", fields)
	assert.Empty(t, e.ExtractAll(doc))
	assert.Equal(t, 0, e.Blocks(doc).Length())
}

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in       string
		expected Selector
	}{
		{in: "h2.title", expected: Selector{CSS: "h2.title"}},
		{in: "a.link@href", expected: Selector{CSS: "a.link", Attr: "href"}},
		{in: " img @ data-src ", expected: Selector{CSS: "img", Attr: "data-src"}},
		{in: "@data-id", expected: Selector{Attr: "data-id"}},
		{in: `a[title*="@home"]`, expected: Selector{CSS: `a[title*="@home"]`}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseSelector(tt.in))
		})
	}
}

func TestExtractBlockAttribute(t *testing.T) {
	html := `<html><body><article data-id="A-17"><h2>Plot</h2></article></body></html>`
	doc, err := parser.Parse([]byte(html), "text/html", "https://www.example.com/")
	require.NoError(t, err)

	e := New("article", map[string]string{"external_id": "@data-id", models.FieldName: "h2"})
	listings := e.ExtractAll(doc)
	require.Len(t, listings, 1)
	assert.Equal(t, "A-17", listings[0]["external_id"])
	assert.Equal(t, "Plot", listings[0][models.FieldName])
}
