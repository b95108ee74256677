package filter

// highCardinality lists properties the selector prefers to probe first when
// several are available at the same selectivity tier: recordId, schema, and
// protocol are known to be high-cardinality and thus good scan starting
// points.
var highCardinality = map[string]int{
	"recordId": 3,
	"schema":   2,
	"protocol": 2,
	"entryId":  3,
	"author":   1,
	"contextId": 1,
}

// SelectProbeProperty picks, across every Filter in fs, the single property
// the query engine should scan first: an equality constraint beats a range
// constraint, and among equal-selectivity candidates the higher
// highCardinality score wins (ties broken by lexicographically smaller
// property name for determinism).
//
// Returns ok=false if fs has no filters at all (nothing to probe; the
// engine falls back to a full isLatestBaseState scan).
func SelectProbeProperty(fs Set) (string, bool) {
	if len(fs) == 0 {
		return "", false
	}

	best := probeCandidate{}
	found := false

	for _, f := range fs {
		for prop, ff := range f {
			c := probeCandidate{prop: prop, isEquality: ff.IsEquality() || ff.IsOneOf(), cardinality: highCardinality[prop]}
			if !found || better(c, best) {
				best = c
				found = true
			}
		}
	}
	if !found {
		return "", false
	}
	return best.prop, true
}

type probeCandidate struct {
	prop        string
	isEquality  bool
	cardinality int
}

func better(a, b probeCandidate) bool {
	if a.isEquality != b.isEquality {
		return a.isEquality
	}
	if a.cardinality != b.cardinality {
		return a.cardinality > b.cardinality
	}
	return a.prop < b.prop
}
