package outline

import (
	"errors"
	"fmt"

	"podnotes/api/internal/store"
)

// CheckInvariants audits one container's nodes: every sibling group is a
// single linked list, parent and prev references stay inside the container
// and the group, and no parent chain loops. It reports every violation.
func CheckInvariants(nodes []store.Node) error {
	byID := make(map[string]store.Node, len(nodes))
	for _, item := range nodes {
		byID[item.UUID] = item
	}

	var problems []error
	groups := make(map[string][]store.Node)
	for _, item := range nodes {
		key := groupKey(item.ContainerID, item.ParentID)
		groups[key] = append(groups[key], item)

		if item.ParentID != nil {
			parent, ok := byID[*item.ParentID]
			switch {
			case !ok:
				problems = append(problems, fmt.Errorf("node %s: parent %s missing", item.UUID, *item.ParentID))
			case parent.ContainerID != item.ContainerID:
				problems = append(problems, fmt.Errorf("node %s: parent %s is in another container", item.UUID, parent.UUID))
			}
		}
		if item.PrevID != nil {
			prev, ok := byID[*item.PrevID]
			switch {
			case !ok:
				problems = append(problems, fmt.Errorf("node %s: prev %s missing", item.UUID, *item.PrevID))
			case prev.ContainerID != item.ContainerID || !store.SameRef(prev.ParentID, item.ParentID):
				problems = append(problems, fmt.Errorf("node %s: prev %s is not a sibling", item.UUID, prev.UUID))
			}
		}
	}

	for _, item := range nodes {
		current := item.ParentID
		for steps := 0; current != nil; steps++ {
			if steps > len(nodes) {
				problems = append(problems, fmt.Errorf("node %s: parent chain does not terminate", item.UUID))
				break
			}
			parent, ok := byID[*current]
			if !ok {
				break
			}
			current = parent.ParentID
		}
	}

	for key, members := range groups {
		heads := 0
		prevs := make(map[string]string, len(members))
		for _, item := range members {
			if item.PrevID == nil {
				heads++
				continue
			}
			if other, taken := prevs[*item.PrevID]; taken {
				problems = append(problems, fmt.Errorf("group %s: %s and %s share prev %s", key, other, item.UUID, *item.PrevID))
			}
			prevs[*item.PrevID] = item.UUID
		}
		if heads != 1 {
			problems = append(problems, fmt.Errorf("group %s: %d first children", key, heads))
			continue
		}
		if ordered := store.OrderChain(members); chainLength(ordered) != len(members) {
			problems = append(problems, fmt.Errorf("group %s: %d of %d nodes unreachable from the first child", key, len(members)-chainLength(ordered), len(members)))
		}
	}
	return errors.Join(problems...)
}

func groupKey(containerID string, parentID *string) string {
	if parentID == nil {
		return containerID + "/"
	}
	return containerID + "/" + *parentID
}

// chainLength counts how far the prev links hold along an ordered group.
func chainLength(ordered []store.Node) int {
	if len(ordered) == 0 || ordered[0].PrevID != nil {
		return 0
	}
	n := 1
	for n < len(ordered) && ordered[n].PrevID != nil && *ordered[n].PrevID == ordered[n-1].UUID {
		n++
	}
	return n
}
