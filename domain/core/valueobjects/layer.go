package valueobjects

// Layer is one of the three visualization scopes. Each layer owns a fully
// isolated node/edge collection.
type Layer string

const (
	LayerPortfolio     Layer = "portfolio"
	LayerProject       Layer = "project"
	LayerDocumentation Layer = "documentation"
)

// Layers lists all layers in navigation order, outermost first.
func Layers() []Layer {
	return []Layer{LayerPortfolio, LayerProject, LayerDocumentation}
}

// IsValid reports whether the layer is one of the three known scopes.
func (l Layer) IsValid() bool {
	switch l {
	case LayerPortfolio, LayerProject, LayerDocumentation:
		return true
	}
	return false
}

// String returns the string representation.
func (l Layer) String() string {
	return string(l)
}
