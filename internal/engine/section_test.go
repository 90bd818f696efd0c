package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelory/drop-page-reservation/internal/model"
)

func intPtr(v int) *int       { return &v }
func u64Ptr(v uint64) *uint64 { return &v }

func TestEffectiveCapDirectProductSection(t *testing.T) {
	r := NewCapResolver([]model.Section{
		{ID: 1, Kind: model.SectionProduct, ProductID: u64Ptr(7), MaxQuantity: intPtr(25)},
	})
	limit, sectionID, bounded := r.EffectiveCap(model.Product{ID: 7})
	require.True(t, bounded)
	assert.Equal(t, 25, limit)
	assert.Equal(t, uint64(1), sectionID)
}

func TestEffectiveCapVariantGroupMembership(t *testing.T) {
	r := NewCapResolver([]model.Section{
		{ID: 2, Kind: model.SectionVariantGroup, VariantGroupID: u64Ptr(3), MaxQuantity: intPtr(50)},
	})

	member := model.Product{ID: 8, VariantGroupID: u64Ptr(3)}
	limit, _, bounded := r.EffectiveCap(member)
	require.True(t, bounded)
	assert.Equal(t, 50, limit)

	outsider := model.Product{ID: 9, VariantGroupID: u64Ptr(4)}
	_, _, bounded = r.EffectiveCap(outsider)
	assert.False(t, bounded)
}

func TestEffectiveCapSetSection(t *testing.T) {
	r := NewCapResolver([]model.Section{
		{ID: 3, Kind: model.SectionSet, SetID: u64Ptr(11), SetMaxSets: intPtr(10)},
	})
	limit, _, bounded := r.EffectiveCap(model.Product{ID: 12, SetID: u64Ptr(11)})
	require.True(t, bounded)
	assert.Equal(t, 10, limit)
}

func TestEffectiveCapTightestWins(t *testing.T) {
	// A product covered by both a generous variant-group cap and a tight
	// direct cap must be bounded by the tight one.
	r := NewCapResolver([]model.Section{
		{ID: 1, Kind: model.SectionVariantGroup, VariantGroupID: u64Ptr(3), MaxQuantity: intPtr(100)},
		{ID: 2, Kind: model.SectionProduct, ProductID: u64Ptr(7), MaxQuantity: intPtr(5)},
	})
	limit, sectionID, bounded := r.EffectiveCap(model.Product{ID: 7, VariantGroupID: u64Ptr(3)})
	require.True(t, bounded)
	assert.Equal(t, 5, limit)
	assert.Equal(t, uint64(2), sectionID)
}

func TestEffectiveCapNilMaxMeansUnbounded(t *testing.T) {
	r := NewCapResolver([]model.Section{
		{ID: 1, Kind: model.SectionProduct, ProductID: u64Ptr(7), MaxQuantity: nil},
	})
	_, _, bounded := r.EffectiveCap(model.Product{ID: 7})
	assert.False(t, bounded)
	assert.True(t, r.Listed(model.Product{ID: 7}))
}

func TestResolverSkipsMalformedSections(t *testing.T) {
	r := NewCapResolver([]model.Section{
		{ID: 1, Kind: model.SectionProduct, ProductID: nil, MaxQuantity: intPtr(5)},
		{ID: 2, Kind: "mystery", ProductID: u64Ptr(7), MaxQuantity: intPtr(5)},
	})
	_, _, bounded := r.EffectiveCap(model.Product{ID: 7})
	assert.False(t, bounded)
	assert.False(t, r.Listed(model.Product{ID: 7}))
}

func TestAvailableQuantity(t *testing.T) {
	cases := []struct {
		name     string
		limit    int
		bounded  bool
		reserved int
		ordered  int
		want     int
	}{
		{"all free", 10, true, 0, 0, 10},
		{"partially consumed", 10, true, 3, 4, 3},
		{"exactly sold out", 10, true, 5, 5, 0},
		{"overcommitted clamps to zero", 10, true, 8, 5, 0},
		{"unbounded sentinel", 0, false, 100, 100, UnboundedAvailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AvailableQuantity(tc.limit, tc.bounded, tc.reserved, tc.ordered))
		})
	}
}

func TestValidateGuest(t *testing.T) {
	ok := GuestCheckout{Name: "Jamie", Email: "jamie@example.com", Phone: "+31 6 1234 5678"}
	assert.Empty(t, ValidateGuest(ok))

	cases := []struct {
		name  string
		guest GuestCheckout
	}{
		{"missing name", GuestCheckout{Email: "jamie@example.com", Phone: "0612345678"}},
		{"missing email", GuestCheckout{Name: "Jamie", Phone: "0612345678"}},
		{"malformed email", GuestCheckout{Name: "Jamie", Email: "not-an-email", Phone: "0612345678"}},
		{"missing phone", GuestCheckout{Name: "Jamie", Email: "jamie@example.com"}},
		{"phone too short", GuestCheckout{Name: "Jamie", Email: "jamie@example.com", Phone: "12345"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEmpty(t, ValidateGuest(tc.guest))
		})
	}
}
