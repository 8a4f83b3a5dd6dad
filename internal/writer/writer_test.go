package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/property-crawler/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) InsertListing(ctx context.Context, listing *models.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}

func newTestWriter(store Store) *Writer {
	w := New(store, DefaultOptions(), nil)
	w.newID = func() string { return "0123abcd-ef45-6789-0000-000000000000" }
	return w
}

func TestWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("complete listing is stored with defaults", func(t *testing.T) {
		store := new(MockStore)
		var stored *models.Listing
		store.On("InsertListing", ctx, mock.AnythingOfType("*models.Listing")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*models.Listing) }).
			Return(nil)

		w := newTestWriter(store)
		id, err := w.Write(ctx, models.RawListing{
			models.FieldName:    "House for sale in DHA",
			models.FieldPrice:   "Rs 1.5 Crore",
			models.FieldAddress: "DHA Phase 6, Karachi",
		}, "https://www.example.com/houses")

		require.NoError(t, err)
		assert.Equal(t, "house-for-sale-in-dha-0123abcd", id)
		store.AssertExpectations(t)

		require.NotNil(t, stored)
		assert.Equal(t, "House for sale in DHA", stored.Name)
		assert.Equal(t, "House for sale in DHA", stored.Description)
		assert.Equal(t, "DHA Phase 6, Karachi", stored.Address)
		assert.InDelta(t, 15_000_000, stored.Price, 0.001)
		assert.Equal(t, "Rs 1.5 Crore", stored.PriceText)
		assert.Equal(t, "For Sale", stored.Purpose)
		assert.Equal(t, 3, stored.Bedrooms)
		assert.Equal(t, 2, stored.Bathrooms)
		assert.Equal(t, 1200.0, stored.AreaSize)
		assert.Equal(t, 12, stored.MinimumStayDuration)
		assert.Equal(t, int64(29), stored.PropertyTypeID)
		assert.Equal(t, int64(1), stored.AgentID)
		assert.Equal(t, int64(1), stored.CityID)
		assert.Equal(t, "https://www.example.com/houses", stored.SourceURL)
	})

	t.Run("page values override defaults", func(t *testing.T) {
		store := new(MockStore)
		var stored *models.Listing
		store.On("InsertListing", ctx, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*models.Listing) }).
			Return(nil)

		w := newTestWriter(store)
		_, err := w.Write(ctx, models.RawListing{
			models.FieldName:        "Flat",
			models.FieldPrice:       "85 Lakh",
			models.FieldAddress:     "Clifton",
			models.FieldDescription: "Sea facing two bed flat",
			models.FieldBedrooms:    "2 Beds",
			models.FieldBathrooms:   "1 Bath",
			models.FieldArea:        "950.5 sqft",
		}, "https://www.example.com/flats")

		require.NoError(t, err)
		assert.Equal(t, "Sea facing two bed flat", stored.Description)
		assert.Equal(t, 2, stored.Bedrooms)
		assert.Equal(t, 1, stored.Bathrooms)
		assert.Equal(t, 950.5, stored.AreaSize)
		assert.InDelta(t, 8_500_000, stored.Price, 0.001)
	})

	t.Run("missing required fields never reach the store", func(t *testing.T) {
		store := new(MockStore)
		w := newTestWriter(store)

		_, err := w.Write(ctx, models.RawListing{
			models.FieldName:  "Plot",
			models.FieldPrice: "   ",
		}, "https://www.example.com/")

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingFields))

		var werr *WriteError
		require.True(t, errors.As(err, &werr))
		assert.Equal(t, []string{models.FieldPrice, models.FieldAddress}, werr.Fields)
		store.AssertNotCalled(t, "InsertListing", mock.Anything, mock.Anything)
	})

	t.Run("unparseable price keeps the raw text", func(t *testing.T) {
		store := new(MockStore)
		var stored *models.Listing
		store.On("InsertListing", ctx, mock.AnythingOfType("*models.Listing")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*models.Listing) }).
			Return(nil)
		w := newTestWriter(store)

		_, err := w.Write(ctx, models.RawListing{
			models.FieldName:    "Plot",
			models.FieldPrice:   "Call for price",
			models.FieldAddress: "Bahria Town",
		}, "https://www.example.com/")

		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "Call for price", stored.PriceText)
		assert.Zero(t, stored.Price)
		store.AssertExpectations(t)
	})

	t.Run("store errors are wrapped", func(t *testing.T) {
		storeErr := errors.New("duplicate key value violates unique constraint")
		store := new(MockStore)
		store.On("InsertListing", ctx, mock.Anything).Return(storeErr)

		w := newTestWriter(store)
		_, err := w.Write(ctx, models.RawListing{
			models.FieldName:    "House",
			models.FieldPrice:   "PKR 25,000",
			models.FieldAddress: "Gulberg, Lahore",
		}, "https://www.example.com/")

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStoreFailure))
		assert.True(t, errors.Is(err, storeErr))
		assert.Contains(t, err.Error(), "duplicate key")
	})
}

func TestSlugsAreUnique(t *testing.T) {
	w := New(nil, DefaultOptions(), nil)

	a := w.slug("Same Name")
	b := w.slug("Same Name")
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^same-name-[0-9a-f]{8}$`, a)
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{in: "House for Sale", expected: "house-for-sale"},
		{in: "  10 Marla -- Corner Plot!! ", expected: "10-marla-corner-plot"},
		{in: "!!!", expected: "property"},
		{in: "", expected: "property"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.in))
		})
	}
}

func TestWriteErrorMessage(t *testing.T) {
	err := &WriteError{Kind: ErrMissingFields, Fields: []string{"name", "price"}}
	assert.Equal(t, "missing required fields: name, price", err.Error())
}
