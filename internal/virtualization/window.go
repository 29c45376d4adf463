// Package virtualization computes the minimal contiguous row window that
// must be rendered to cover a scroll viewport, so arbitrarily large result
// sets never materialize in full.
package virtualization

// DefaultOverscan is the number of rows rendered beyond each edge of the
// viewport when the caller does not choose one.
const DefaultOverscan = 5

// fallbackHeight stands in for the container height before it is measured.
const fallbackHeight = 600

// Config is one window computation input. All dimensions are pixels.
type Config struct {
	ItemHeight      int `json:"item_height"`
	ContainerHeight int `json:"container_height"`
	ScrollTop       int `json:"scroll_top"`
	TotalItems      int `json:"total_items"`
	Overscan        int `json:"overscan"`
	HeaderHeight    int `json:"header_height"`
}

// Window is the computed render window: the inclusive index range with
// overscan padding, the indices to iterate, the total scrollable height,
// and the pixel offset at which the rendered rows must be positioned.
type Window struct {
	StartIndex   int   `json:"start_index"`
	EndIndex     int   `json:"end_index"`
	VisibleItems []int `json:"visible_items"`
	TotalHeight  int   `json:"total_height"`
	OffsetY      int   `json:"offset_y"`
}

// Compute derives the window for the given scroll state. Before the
// container is measured (height zero) it degrades to an initial batch of
// overscan*2+15 rows instead of rendering nothing.
func Compute(cfg Config) Window {
	if cfg.ItemHeight <= 0 {
		return Window{VisibleItems: []int{}}
	}

	effectiveHeight := cfg.ContainerHeight
	if effectiveHeight <= 0 {
		effectiveHeight = fallbackHeight
	}

	startIndex := (cfg.ScrollTop-cfg.HeaderHeight)/cfg.ItemHeight - cfg.Overscan
	if startIndex < 0 {
		startIndex = 0
	}

	visibleCount := ceilDiv(effectiveHeight+cfg.HeaderHeight, cfg.ItemHeight)
	endIndex := startIndex + visibleCount + cfg.Overscan*2
	if endIndex > cfg.TotalItems-1 {
		endIndex = cfg.TotalItems - 1
	}
	if endIndex < startIndex {
		endIndex = startIndex
	}
	if endIndex > cfg.TotalItems-1 {
		endIndex = cfg.TotalItems - 1
	}

	var visible []int
	switch {
	case cfg.TotalItems == 0:
		visible = []int{}
	case cfg.ContainerHeight <= 0:
		visible = indexRange(0, min(cfg.TotalItems-1, cfg.Overscan*2+15))
	default:
		visible = indexRange(startIndex, endIndex)
	}

	// A non-empty result set always renders something.
	if len(visible) == 0 && cfg.TotalItems > 0 {
		visible = indexRange(0, min(cfg.TotalItems-1, 20))
	}

	return Window{
		StartIndex:   startIndex,
		EndIndex:     endIndex,
		VisibleItems: visible,
		TotalHeight:  cfg.TotalItems * cfg.ItemHeight,
		OffsetY:      startIndex * cfg.ItemHeight,
	}
}

func indexRange(from, to int) []int {
	if to < from {
		return []int{}
	}
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
