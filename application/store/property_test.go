package store

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"

	"canvas-engine/domain/core/entities"
	"canvas-engine/domain/core/valueobjects"
)

// opCode drives the generated mutation sequences.
type opCode int

const (
	opAddNode opCode = iota
	opDeleteNode
	opAddEdge
	opDeleteEdge
	opPutNode
)

// TestStoreInvariants verifies that no sequence of mutations ever leaves
// a layer inconsistent: every edge endpoint resolves, order slices match
// the maps, the document index stays coherent.
func TestStoreInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("arbitrary mutation sequences keep layers valid", prop.ForAll(
		func(ops []int) bool {
			s := NewCanvasStore(zap.NewNop(), nil)
			layer := valueobjects.LayerProject

			var nodeIDs []valueobjects.NodeID
			var edgeIDs []valueobjects.EdgeID

			for i, raw := range ops {
				switch opCode(raw % 5) {
				case opAddNode:
					node, err := entities.NewVisualNode(entities.NodeTypeResources, "node",
						valueobjects.NewPosition(float64(i), 0, 0), &entities.ComponentData{
							Component: entities.NodeTypeResources,
						})
					if err != nil {
						return false
					}
					if err := s.AddNode(layer, node); err != nil {
						return false
					}
					nodeIDs = append(nodeIDs, node.ID)

				case opDeleteNode:
					if len(nodeIDs) == 0 {
						continue
					}
					id := nodeIDs[i%len(nodeIDs)]
					nodeIDs = append(nodeIDs[:i%len(nodeIDs)], nodeIDs[i%len(nodeIDs)+1:]...)
					if err := s.DeleteNode(layer, id); err != nil {
						return false
					}

				case opAddEdge:
					if len(nodeIDs) < 2 {
						continue
					}
					source := nodeIDs[i%len(nodeIDs)]
					target := nodeIDs[(i+1)%len(nodeIDs)]
					edge := entities.NewVisualEdge(source, target, entities.EdgeTypeRelatedTo)
					if err := s.AddEdge(layer, edge); err != nil {
						return false
					}
					edgeIDs = append(edgeIDs, edge.ID)

				case opDeleteEdge:
					if len(edgeIDs) == 0 {
						continue
					}
					id := edgeIDs[i%len(edgeIDs)]
					edgeIDs = append(edgeIDs[:i%len(edgeIDs)], edgeIDs[i%len(edgeIDs)+1:]...)
					if err := s.DeleteEdge(layer, id); err != nil {
						return false
					}

				case opPutNode:
					if len(nodeIDs) == 0 {
						continue
					}
					existing, ok := s.GetNode(layer, nodeIDs[i%len(nodeIDs)])
					if !ok {
						return false
					}
					existing.Label = "replaced"
					if err := s.PutNode(layer, existing); err != nil {
						return false
					}
				}

				if err := s.Validate(); err != nil {
					return false
				}
			}

			// Every surviving edge must still resolve both endpoints.
			nodes := s.Nodes(layer)
			present := make(map[valueobjects.NodeID]bool, len(nodes))
			for _, node := range nodes {
				present[node.ID] = true
			}
			for _, edge := range s.Edges(layer) {
				if !present[edge.Source] || !present[edge.Target] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 24)),
	))

	properties.TestingRun(t)
}
