package export

import "podnotes/api/internal/store"

// BuildTree nests a container's nodes by parent, each group in sibling order.
func BuildTree(nodes []store.Node) []Item {
	groups := make(map[string][]store.Node)
	for _, item := range nodes {
		key := ""
		if item.ParentID != nil {
			key = *item.ParentID
		}
		groups[key] = append(groups[key], item)
	}

	visited := make(map[string]bool, len(nodes))
	var build func(key string) []Item
	build = func(key string) []Item {
		var items []Item
		for _, node := range store.OrderChain(groups[key]) {
			if visited[node.UUID] {
				continue
			}
			visited[node.UUID] = true
			items = append(items, Item{UUID: node.UUID, Content: node.Content, Children: build(node.UUID)})
		}
		return items
	}
	return build("")
}
