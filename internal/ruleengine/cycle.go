package ruleengine

// detectCycle reports whether g has a cycle and, if so, one path that
// demonstrates it (start -> ... -> end, where end closes back to start),
// directly adapted from the add-on resolver's DFS-based cycle detector with
// path reconstruction.
func detectCycle(g *graph) (bool, []string) {
	visited := make(map[string]bool, len(g.nodes))
	stack := make(map[string]bool, len(g.nodes))

	for id := range g.nodes {
		if visited[id] {
			continue
		}
		if found, start, end := dfsCycle(g, id, visited, stack); found {
			path := findPath(g, start, end)
			if len(path) > 0 && path[0] != path[len(path)-1] {
				path = append(path, path[0])
			}
			return true, path
		}
	}
	return false, nil
}

func dfsCycle(g *graph, current string, visited, stack map[string]bool) (bool, string, string) {
	visited[current] = true
	stack[current] = true

	for _, next := range g.neighbors(current) {
		if !visited[next] {
			if found, start, end := dfsCycle(g, next, visited, stack); found {
				return true, start, end
			}
			continue
		}
		if stack[next] {
			return true, next, current
		}
	}
	stack[current] = false
	return false, "", ""
}

func findPath(g *graph, start, end string) []string {
	if start == "" || end == "" || start == end {
		return []string{start}
	}
	type item struct {
		id   string
		path []string
	}
	queue := []item{{id: start, path: []string{start}}}
	visited := map[string]struct{}{start: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.neighbors(cur.id) {
			path := append(append([]string{}, cur.path...), next)
			if next == end {
				return path
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, item{id: next, path: path})
		}
	}
	return nil
}
