package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowV6Monotonic(t *testing.T) {
	a := NowV6()
	b := NowV6()
	assert.NotEqual(t, a, b)
}

func TestBrefStable(t *testing.T) {
	b := NowV6()
	assert.Equal(t, BrefOf(b), BrefOf(b))
	assert.Len(t, string(BrefOf(b)), 12)
}

func TestBrefDistinctForDistinctBids(t *testing.T) {
	a, b := NowV6(), NowV6()
	assert.NotEqual(t, a.Bref(), b.Bref())
}

func TestIsReservedBidForNamespaceConstants(t *testing.T) {
	assert.True(t, IsReservedBid(APINamespace))
	assert.True(t, IsReservedBid(HrefNamespace))
	assert.True(t, IsReservedBid(AssetNamespace))
	assert.False(t, IsReservedBid(NowV6()))
}

func TestIsReservedBidForDerivedChild(t *testing.T) {
	child := New(AssetNamespace)
	assert.True(t, IsReservedBid(child))

	ordinary := New(NowV6())
	assert.False(t, IsReservedBid(ordinary))
}

func TestNewNamedDeterministic(t *testing.T) {
	a := NewNamed(APINamespace, "v1")
	b := NewNamed(APINamespace, "v1")
	assert.Equal(t, a, b)

	c := NewNamed(APINamespace, "v2")
	assert.NotEqual(t, a, c)
}

func TestBuildonomyAPIBidReserved(t *testing.T) {
	b := BuildonomyAPIBid("v1")
	assert.True(t, IsReservedBid(b))
}

func TestParseBidRoundTrip(t *testing.T) {
	b := NowV6()
	s := b.String()
	parsed, err := ParseBid(s)
	require.NoError(t, err)
	assert.Equal(t, b, parsed)
}

func TestParseBidInvalid(t *testing.T) {
	_, err := ParseBid("not-a-uuid")
	require.Error(t, err)
}

func TestMarshalUnmarshalText(t *testing.T) {
	b := NowV6()
	text, err := b.MarshalText()
	require.NoError(t, err)

	var out Bid
	require.NoError(t, out.UnmarshalText(text))
	assert.Equal(t, b, out)
}
