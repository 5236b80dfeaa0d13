package sdk

// Viewport is the scrollable surface a timeline is rendered into
type Viewport interface {
	ScrollTop() float64
	ScrollHeight() float64
	SetScrollTop(top float64)
}

// ScrollAnchor remembers where the reader was before older entries were
// prepended above them.
type ScrollAnchor struct {
	top    float64
	height float64
}

// CaptureAnchor records the viewport position
func CaptureAnchor(v Viewport) ScrollAnchor {
	return ScrollAnchor{top: v.ScrollTop(), height: v.ScrollHeight()}
}

// Restore shifts the viewport by the height added above the anchor so the
// same entries stay on screen
func (a ScrollAnchor) Restore(v Viewport) {
	v.SetScrollTop(a.top + (v.ScrollHeight() - a.height))
}
