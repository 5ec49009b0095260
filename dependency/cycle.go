package dependency

// OutgoingFunc supplies the outgoing edges of an element. The cycle
// detector is expressed against this function so it can run over the
// live adjacency index, a snapshot, or a test fixture alike.
type OutgoingFunc func(id string) []Dependency

// CanReach reports whether to is reachable from from by following
// edges of the given family. The search is breadth-first and touches
// each node at most once, so it is O(V+E) in the worst case.
func CanReach(outgoing OutgoingFunc, family Family, from, to string) bool {
	if from == to {
		return true
	}

	visited := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range outgoing(current) {
			if edge.Type.Family() != family {
				continue
			}
			next := edge.TargetID
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// WouldCreateCycle reports whether inserting source -> target would
// close a directed cycle within the family. A self-loop is always a
// cycle; otherwise a cycle forms exactly when the target can already
// reach the source. The check has no side effects and is safe to run
// speculatively before a mutation commits.
func WouldCreateCycle(outgoing OutgoingFunc, family Family, source, target string) bool {
	if family == FamilyNone {
		return false
	}
	if source == target {
		return true
	}
	return CanReach(outgoing, family, target, source)
}
