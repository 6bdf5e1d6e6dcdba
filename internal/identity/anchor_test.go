package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToAnchorCollision(t *testing.T) {
	assert.Equal(t, ToAnchor("Section One!"), ToAnchor("Section One"))
	assert.Equal(t, "section-one", ToAnchor("Section One!"))
}

func TestToAnchorIdempotent(t *testing.T) {
	a := ToAnchor("  Weird???  Title -- Here  ")
	assert.Equal(t, a, ToAnchor(a))
}

func TestToAnchorEmpty(t *testing.T) {
	assert.Equal(t, "", ToAnchor("<>"))
	assert.Equal(t, "", ToAnchor(""))
}

func TestIsReservedID(t *testing.T) {
	assert.True(t, IsReservedID("_noet:internal", "_noet:"))
	assert.False(t, IsReservedID("my-id", "_noet:"))
}
