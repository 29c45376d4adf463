package virtualization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTopOfList(t *testing.T) {
	w := Compute(Config{
		ItemHeight:      40,
		ContainerHeight: 400,
		ScrollTop:       0,
		TotalItems:      1000,
		Overscan:        5,
	})

	assert.Equal(t, 0, w.StartIndex)
	assert.Equal(t, 0, w.OffsetY)
	assert.Equal(t, 40000, w.TotalHeight)

	// 10 visible rows plus overscan padding below.
	require.NotEmpty(t, w.VisibleItems)
	assert.Equal(t, 0, w.VisibleItems[0])
	assert.Equal(t, w.EndIndex, w.VisibleItems[len(w.VisibleItems)-1])
	assert.Equal(t, 20, w.EndIndex)
}

func TestComputeMidScroll(t *testing.T) {
	w := Compute(Config{
		ItemHeight:      40,
		ContainerHeight: 400,
		ScrollTop:       4000,
		TotalItems:      1000,
		Overscan:        5,
	})

	// 4000/40 = row 100, minus overscan.
	assert.Equal(t, 95, w.StartIndex)
	assert.Equal(t, 95*40, w.OffsetY)
	assert.Equal(t, 115, w.EndIndex)
	assert.Len(t, w.VisibleItems, 21)
}

func TestComputeHeaderOffset(t *testing.T) {
	w := Compute(Config{
		ItemHeight:      40,
		ContainerHeight: 400,
		ScrollTop:       4000,
		TotalItems:      1000,
		Overscan:        5,
		HeaderHeight:    80,
	})

	// The header occupies the first 80px of scroll space.
	assert.Equal(t, 93, w.StartIndex)
	// ceil((400+80)/40) = 12 visible rows.
	assert.Equal(t, 93+12+10, w.EndIndex)
}

func TestComputeClampsToTotal(t *testing.T) {
	w := Compute(Config{
		ItemHeight:      40,
		ContainerHeight: 400,
		ScrollTop:       39999,
		TotalItems:      1000,
		Overscan:        5,
	})

	assert.Equal(t, 999, w.EndIndex)
	assert.LessOrEqual(t, w.StartIndex, w.EndIndex)
}

func TestComputeUnmeasuredContainerFallsBack(t *testing.T) {
	w := Compute(Config{
		ItemHeight: 40,
		TotalItems: 1000,
		Overscan:   5,
	})

	// Initial batch before the container reports a height.
	require.NotEmpty(t, w.VisibleItems)
	assert.Equal(t, 0, w.VisibleItems[0])
	assert.Len(t, w.VisibleItems, 26) // overscan*2 + 15 + 1
	assert.Equal(t, 40000, w.TotalHeight)
}

func TestComputeSmallResultSet(t *testing.T) {
	w := Compute(Config{
		ItemHeight:      40,
		ContainerHeight: 400,
		TotalItems:      3,
		Overscan:        5,
	})

	assert.Equal(t, []int{0, 1, 2}, w.VisibleItems)
	assert.Equal(t, 2, w.EndIndex)
}

func TestComputeEmptyAndInvalid(t *testing.T) {
	assert.Empty(t, Compute(Config{ItemHeight: 40, ContainerHeight: 400}).VisibleItems)
	assert.Empty(t, Compute(Config{TotalItems: 100}).VisibleItems)
}
