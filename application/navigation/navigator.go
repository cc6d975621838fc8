package navigation

import (
	"sync"

	"go.uber.org/zap"

	"canvas-engine/domain/core/valueobjects"
)

// RootLabel is the fixed label of the portfolio root entry. The root is
// never poppable.
const RootLabel = "Portfolio"

// Entry is one breadcrumb: the layer the user visited and the project
// context it was visited in.
type Entry struct {
	Layer     valueobjects.Layer     `json:"layer"`
	ProjectID valueobjects.ProjectID `json:"project_id,omitempty"`
	Label     string                 `json:"label"`
}

// Navigator maintains the ordered history of layer transitions. The
// stack is never empty: the portfolio root entry is created at
// construction and cannot be popped.
type Navigator struct {
	mu      sync.Mutex
	stack   []Entry
	current Entry
	logger  *zap.Logger
}

// NewNavigator creates a navigator positioned at the portfolio root.
func NewNavigator(logger *zap.Logger) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	root := Entry{Layer: valueobjects.LayerPortfolio, Label: RootLabel}
	return &Navigator{
		stack:   []Entry{root},
		current: root,
		logger:  logger,
	}
}

// NavigateToLayer pushes a new history entry and makes it current.
func (n *Navigator) NavigateToLayer(layer valueobjects.Layer, projectID valueobjects.ProjectID, label string) Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	entry := Entry{Layer: layer, ProjectID: projectID, Label: label}
	n.stack = append(n.stack, entry)
	n.current = entry

	n.logger.Debug("navigated to layer",
		zap.String("layer", layer.String()),
		zap.String("projectID", projectID.String()),
		zap.Int("depth", len(n.stack)),
	)
	return entry
}

// NavigateBack pops the top entry and makes the new top current. No-op at
// the root.
func (n *Navigator) NavigateBack() Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.stack) > 1 {
		n.stack = n.stack[:len(n.stack)-1]
	}
	n.current = n.stack[len(n.stack)-1]
	return n.current
}

// SetCurrentLayer jumps the current pointers without recording a
// breadcrumb. Used when a view forces a layer out of band.
func (n *Navigator) SetCurrentLayer(layer valueobjects.Layer, projectID valueobjects.ProjectID) Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.current = Entry{Layer: layer, ProjectID: projectID, Label: n.current.Label}
	return n.current
}

// ResetToRoot collapses history back to the single root entry by
// repeated pop, never by pushing.
func (n *Navigator) ResetToRoot() Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.stack = n.stack[:1]
	n.current = n.stack[0]
	return n.current
}

// Current returns the active layer/project context.
func (n *Navigator) Current() Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Depth returns the history length, root included.
func (n *Navigator) Depth() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.stack)
}

// Breadcrumbs projects the stack for display. Pass includeRoot=false to
// skip the synthetic root entry per the usual UI convention.
func (n *Navigator) Breadcrumbs(includeRoot bool) []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := 0
	if !includeRoot {
		start = 1
	}
	if start >= len(n.stack) {
		return nil
	}
	out := make([]Entry, len(n.stack)-start)
	copy(out, n.stack[start:])
	return out
}
