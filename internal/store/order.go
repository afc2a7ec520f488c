package store

import "sort"

// OrderChain orders one sibling group by following prev_id links from the
// head. Nodes that cannot be reached from the head (only possible in a
// corrupted group) are appended by creation time so nothing is hidden.
func OrderChain(nodes []Node) []Node {
	if len(nodes) < 2 {
		return nodes
	}
	next := make(map[string]int, len(nodes))
	heads := make([]int, 0, 1)
	for i, item := range nodes {
		if item.PrevID == nil {
			heads = append(heads, i)
			continue
		}
		if _, taken := next[*item.PrevID]; !taken {
			next[*item.PrevID] = i
		}
	}

	ordered := make([]Node, 0, len(nodes))
	seen := make(map[int]bool, len(nodes))
	if len(heads) > 0 {
		for i, ok := heads[0], true; ok && !seen[i]; i, ok = next[nodes[i].UUID] {
			seen[i] = true
			ordered = append(ordered, nodes[i])
		}
	}
	if len(ordered) == len(nodes) {
		return ordered
	}

	rest := make([]Node, 0, len(nodes)-len(ordered))
	for i, item := range nodes {
		if !seen[i] {
			rest = append(rest, item)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool {
		if rest[i].CreatedAt.Equal(rest[j].CreatedAt) {
			return rest[i].UUID < rest[j].UUID
		}
		return rest[i].CreatedAt.Before(rest[j].CreatedAt)
	})
	return append(ordered, rest...)
}

// OrderTree returns the nodes of one container in depth-first document order.
func OrderTree(nodes []Node) []Node {
	groups := make(map[string][]Node)
	for _, item := range nodes {
		key := ""
		if item.ParentID != nil {
			key = *item.ParentID
		}
		groups[key] = append(groups[key], item)
	}

	ordered := make([]Node, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))
	var walk func(key string)
	walk = func(key string) {
		for _, item := range OrderChain(groups[key]) {
			if visited[item.UUID] {
				continue
			}
			visited[item.UUID] = true
			ordered = append(ordered, item)
			walk(item.UUID)
		}
	}
	walk("")

	if len(ordered) < len(nodes) {
		for _, item := range OrderChain(nodes) {
			if !visited[item.UUID] {
				ordered = append(ordered, item)
			}
		}
	}
	return ordered
}
