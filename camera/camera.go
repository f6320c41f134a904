// Package camera provides a 2D camera over the ground plane for viewport
// control in the preview tools.
package camera

// Camera controls the viewport into a bounded world.
// World coordinates are the X/Z ground plane; screen Y grows with world Z.
type Camera struct {
	// Position is the camera center in world coordinates
	X, Z float32

	// Zoom level on top of the base scale (1.0 = BaseScale pixels per unit)
	Zoom      float32
	BaseScale float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// World dimensions
	WorldW, WorldD float32

	// Zoom constraints
	MinZoom, MaxZoom float32
}

// New creates a camera centered on the world at the given pixels per unit.
func New(viewportW, viewportH, worldW, worldD, pixelsPerUnit float32) *Camera {
	c := &Camera{
		Zoom:      1.0,
		BaseScale: pixelsPerUnit,
		WorldW:    worldW,
		WorldD:    worldD,
		MaxZoom:   8.0,
	}
	c.Resize(viewportW, viewportH)
	c.Reset()
	return c
}

// Scale returns pixels per world unit at the current zoom.
func (c *Camera) Scale() float32 {
	return c.BaseScale * c.Zoom
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wz float32) (sx, sy float32) {
	s := c.Scale()
	return c.ViewportW/2 + (wx-c.X)*s, c.ViewportH/2 + (wz-c.Z)*s
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wz float32) {
	s := c.Scale()
	return c.X + (sx-c.ViewportW/2)/s, c.Z + (sy-c.ViewportH/2)/s
}

// IsVisible returns true if a circle at (wx, wz) with given radius
// could be visible on screen (conservative check for culling).
func (c *Camera) IsVisible(wx, wz, radius float32) bool {
	halfW := c.ViewportW/(2*c.Scale()) + radius
	halfH := c.ViewportH/(2*c.Scale()) + radius
	return absf(wx-c.X) <= halfW && absf(wz-c.Z) <= halfH
}

// Resize updates viewport dimensions and recalculates zoom constraints.
// The minimum zoom fits the whole world in the viewport.
func (c *Camera) Resize(viewportW, viewportH float32) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.MinZoom = min(viewportW/(c.WorldW*c.BaseScale), viewportH/(c.WorldD*c.BaseScale), 1)
	c.SetZoom(c.Zoom)
}

// Pan moves the camera by the given delta in screen pixels.
// The center stays inside the world.
func (c *Camera) Pan(dx, dy float32) {
	s := c.Scale()
	c.X = clamp(c.X+dx/s, 0, c.WorldW)
	c.Z = clamp(c.Z+dy/s, 0, c.WorldD)
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = clamp(zoom, c.MinZoom, c.MaxZoom)
}

// ZoomAt multiplies the zoom by factor, keeping the world point under the
// screen position (sx, sy) fixed.
func (c *Camera) ZoomAt(factor, sx, sy float32) {
	wx, wz := c.ScreenToWorld(sx, sy)
	c.SetZoom(c.Zoom * factor)
	nx, nz := c.ScreenToWorld(sx, sy)
	c.X = clamp(c.X+wx-nx, 0, c.WorldW)
	c.Z = clamp(c.Z+wz-nz, 0, c.WorldD)
}

// Reset returns the camera to the world center at 1:1 zoom.
func (c *Camera) Reset() {
	c.X = c.WorldW / 2
	c.Z = c.WorldD / 2
	c.SetZoom(1.0)
}

// VisibleWorldBounds returns the world-coordinate bounds of the visible area.
func (c *Camera) VisibleWorldBounds() (minX, minZ, maxX, maxZ float32) {
	halfW := c.ViewportW / (2 * c.Scale())
	halfH := c.ViewportH / (2 * c.Scale())
	return c.X - halfW, c.Z - halfH, c.X + halfW, c.Z + halfH
}

// absf returns the absolute value of a float32.
func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// clamp restricts a value to a range.
func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
