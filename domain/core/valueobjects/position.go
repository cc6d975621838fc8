package valueobjects

// Position locates a node on the canvas. Z is the stacking order:
// stacked document versions render at increasing Z.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z int     `json:"z"`
}

// NewPosition creates a position at the given coordinates.
func NewPosition(x, y float64, z int) Position {
	return Position{X: x, Y: y, Z: z}
}

// Equals compares two positions.
func (p Position) Equals(other Position) bool {
	return p.X == other.X && p.Y == other.Y && p.Z == other.Z
}

// Translate returns a new position shifted by dx and dy.
func (p Position) Translate(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy, Z: p.Z}
}

// Raise returns a new position with the stacking order increased by dz.
func (p Position) Raise(dz int) Position {
	return Position{X: p.X, Y: p.Y, Z: p.Z + dz}
}
