package source

// SortByDependencies orders tables parents-first so FK-respecting inserts
// can proceed top to bottom. Cycles are broken greedily: among the blocked
// tables, the one with the fewest unmet dependencies wins, with a bonus for
// tables that sit directly on a two-table cycle.
func SortByDependencies(tables []*TableInfo) []*TableInfo {
	byName := make(map[string]*TableInfo, len(tables))
	for _, t := range tables {
		byName[t.Table] = t
	}

	var sorted []*TableInfo
	processed := make(map[string]bool)

	for len(sorted) < len(tables) {
		added := false

		// Pass 1: tables whose dependencies are all satisfied.
		for _, t := range tables {
			if processed[t.Table] {
				continue
			}
			ready := true
			for _, dep := range t.Dependencies {
				if !processed[dep] {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, t)
				processed[t.Table] = true
				added = true
			}
		}
		if added {
			continue
		}

		// Pass 2: cycle. Score the blocked tables and break at the best one.
		var best *TableInfo
		bestScore := -1 << 30
		for _, t := range tables {
			if processed[t.Table] {
				continue
			}
			score := 0
			for _, dep := range t.Dependencies {
				if !processed[dep] {
					score -= 100
					if cand, ok := byName[dep]; ok && dependsOn(cand, t.Table) {
						score += 500
					}
				}
			}
			if score > bestScore || (score == bestScore && (best == nil || t.Table < best.Table)) {
				bestScore = score
				best = t
			}
		}
		if best == nil {
			break
		}
		sorted = append(sorted, best)
		processed[best.Table] = true
	}
	return sorted
}

func dependsOn(t *TableInfo, name string) bool {
	for _, dep := range t.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}
