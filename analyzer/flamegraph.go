package analyzer

import (
	"fmt"
	"sort"

	"github.com/google/pprof/profile"
)

// tempNode is used while the tree is being built.
type tempNode struct {
	node      *FlameGraphNode
	children  map[uint64]*tempNode
	order     []uint64 // child function IDs in first-seen order
	selfValue int64
}

func newTempNode(name string) *tempNode {
	return &tempNode{node: &FlameGraphNode{Name: name}, children: map[uint64]*tempNode{}}
}

// BuildFlameGraphTree converts pprof profile data into a hierarchical FlameGraphNode structure.
// valueIndex specifies which sample value to use; for profiles from ToProfile
// that is ProfileDurationIndex or ProfileInstancesIndex.
func BuildFlameGraphTree(p *profile.Profile, valueIndex int) (*FlameGraphNode, error) {
	if valueIndex < 0 || valueIndex >= len(p.SampleType) {
		return nil, fmt.Errorf("invalid value index %d for profile with %d sample types", valueIndex, len(p.SampleType))
	}

	root := newTempNode("root")
	for _, sample := range p.Sample {
		value := sample.Value[valueIndex]
		if value == 0 {
			continue
		}
		// Stacks are stored leaf first; the flame graph grows from the root.
		current := root
		for i := len(sample.Location) - 1; i >= 0; i-- {
			loc := sample.Location[i]
			if len(loc.Line) == 0 {
				continue
			}
			fn := loc.Line[0].Function
			if fn == nil {
				fn = &profile.Function{Name: fmt.Sprintf("unknown @ 0x%x", loc.Address)}
			}
			child, ok := current.children[fn.ID]
			if !ok {
				child = newTempNode(fn.Name)
				current.children[fn.ID] = child
				current.order = append(current.order, fn.ID)
			}
			if i == 0 {
				child.selfValue += value
			}
			current = child
		}
	}

	root.node.Value = calculateTotalValueAndBuildTree(root)
	sortChildrenByValue(root.node)
	return root.node, nil
}

// calculateTotalValueAndBuildTree sums self and child values bottom up and
// fills in the Children slices. Children with a zero total are dropped.
func calculateTotalValueAndBuildTree(tn *tempNode) int64 {
	total := tn.selfValue
	children := []*FlameGraphNode{}
	for _, id := range tn.order {
		ct := tn.children[id]
		v := calculateTotalValueAndBuildTree(ct)
		ct.node.Value = v
		if v > 0 {
			children = append(children, ct.node)
		}
		total += v
	}
	tn.node.Children = children
	return total
}

// sortChildrenByValue recursively sorts the children of a FlameGraphNode by value (descending).
// Ties keep their first-seen order.
func sortChildrenByValue(node *FlameGraphNode) {
	if node == nil || len(node.Children) == 0 {
		return
	}
	sort.SliceStable(node.Children, func(i, j int) bool {
		return node.Children[i].Value > node.Children[j].Value
	})
	for _, child := range node.Children {
		sortChildrenByValue(child)
	}
}
