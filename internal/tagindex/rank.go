package tagindex

import "sort"

// ScoredEntity is one ranked hit: the entity and how many of the queried
// tags it carries.
type ScoredEntity struct {
	EntityID string `json:"entity_id"`
	Overlap  int    `json:"overlap"`
}

// RankByTags counts, for every entity, how many of the query tags it
// carries and returns the entities with a non-zero count ordered by count
// descending, then entity id ascending. The query is treated as a set:
// duplicates and empty strings are ignored. Only the buckets of the queried
// tags are visited.
func (x *Index) RankByTags(query []string) []ScoredEntity {
	distinct := dedupe(query)
	if len(distinct) == 0 {
		return []ScoredEntity{}
	}

	x.mu.RLock()
	counts := make(map[string]int)
	for _, tag := range distinct {
		for id := range x.tags[tag] {
			counts[id]++
		}
	}
	x.mu.RUnlock()

	result := make([]ScoredEntity, 0, len(counts))
	for id, n := range counts {
		result = append(result, ScoredEntity{EntityID: id, Overlap: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Overlap != result[j].Overlap {
			return result[i].Overlap > result[j].Overlap
		}
		return result[i].EntityID < result[j].EntityID
	})
	return result
}

// MatchedTags returns the sorted intersection of an entity's tags with a
// query. The ranking itself only carries counts; callers that display the
// matching tag names compute them with this.
func MatchedTags(entityTags, query []string) []string {
	want := make(set, len(query))
	for _, q := range query {
		want[q] = struct{}{}
	}
	matched := make(set)
	for _, t := range entityTags {
		if _, ok := want[t]; ok {
			matched[t] = struct{}{}
		}
	}
	return matched.sorted()
}

// NormalizeQuery returns the distinct, non-empty query tags in ascending
// order.
func NormalizeQuery(query []string) []string {
	distinct := dedupe(query)
	sort.Strings(distinct)
	return distinct
}

func dedupe(query []string) []string {
	seen := make(set, len(query))
	out := make([]string, 0, len(query))
	for _, q := range query {
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
