package expr

import (
	"floe/manifest"
	"floe/table"
)

// The evaluators below are three-valued at the leaves: a predicate against
// incomplete statistics yields true, false, or unknown, and unknown never
// prunes. A file or manifest is dropped only when the predicate is provably
// false for every row it could contain.

// MightMatchFile evaluates a bound predicate against a file's column-level
// statistics.
func MightMatchFile(e *Expr, f *manifest.DataFile) bool {
	switch e.Op {
	case OpTrue:
		return true
	case OpFalse:
		return false
	case OpAnd:
		return MightMatchFile(e.Left, f) && MightMatchFile(e.Right, f)
	case OpOr:
		return MightMatchFile(e.Left, f) || MightMatchFile(e.Right, f)
	}

	id := e.Field.ID
	switch e.Op {
	case OpIsNull:
		if nc, ok := f.NullValueCounts[id]; ok && nc == 0 {
			return false
		}
		return true
	case OpNotNull:
		nc, haveNulls := f.NullValueCounts[id]
		vc, haveValues := f.ValueCounts[id]
		if haveNulls && haveValues && nc == vc {
			return false // every value is null
		}
		return true
	case OpNE, OpNotIn:
		return true
	}

	lower, lowerOK := decodeFileBound(e.Field.Type, f.LowerBounds[id])
	upper, upperOK := decodeFileBound(e.Field.Type, f.UpperBounds[id])

	switch e.Op {
	case OpLT:
		// No row below the minimum can satisfy v < lit.
		if lowerOK {
			if cmp, ok := table.Compare(lower, e.Literals[0]); ok && cmp >= 0 {
				return false
			}
		}
		return true
	case OpLE:
		if lowerOK {
			if cmp, ok := table.Compare(lower, e.Literals[0]); ok && cmp > 0 {
				return false
			}
		}
		return true
	case OpGT:
		if upperOK {
			if cmp, ok := table.Compare(upper, e.Literals[0]); ok && cmp <= 0 {
				return false
			}
		}
		return true
	case OpGE:
		if upperOK {
			if cmp, ok := table.Compare(upper, e.Literals[0]); ok && cmp < 0 {
				return false
			}
		}
		return true
	case OpEQ:
		return inRange(e.Literals[0], lower, lowerOK, upper, upperOK)
	case OpIn:
		for _, lit := range e.Literals {
			if inRange(lit, lower, lowerOK, upper, upperOK) {
				return true
			}
		}
		return false
	}
	return true
}

func decodeFileBound(t table.Type, raw []byte) (table.Value, bool) {
	if raw == nil {
		return table.Null(), false
	}
	v, err := table.DecodeBound(t, raw)
	if err != nil || v.IsNull() {
		return table.Null(), false
	}
	return v, true
}

// inRange reports whether lit could lie within [lower, upper]; unknown
// bounds widen the range.
func inRange(lit table.Value, lower table.Value, lowerOK bool, upper table.Value, upperOK bool) bool {
	if lowerOK {
		if cmp, ok := table.Compare(lower, lit); ok && cmp > 0 {
			return false
		}
	}
	if upperOK {
		if cmp, ok := table.Compare(upper, lit); ok && cmp < 0 {
			return false
		}
	}
	return true
}

// MightMatchManifest evaluates a partition-projected predicate against a
// manifest's aggregated per-partition-field summaries, pruning whole
// manifests without opening them.
func MightMatchManifest(e *Expr, partitions []manifest.FieldSummary) bool {
	switch e.Op {
	case OpTrue:
		return true
	case OpFalse:
		return false
	case OpAnd:
		return MightMatchManifest(e.Left, partitions) && MightMatchManifest(e.Right, partitions)
	case OpOr:
		return MightMatchManifest(e.Left, partitions) || MightMatchManifest(e.Right, partitions)
	}
	if e.Part == nil || e.Part.Pos >= len(partitions) {
		return true
	}
	s := partitions[e.Part.Pos]

	if e.Op == OpIsNull {
		return s.ContainsNull
	}

	lower, lowerOK := parseSummaryBound(e.Part.Type, s.LowerBound)
	upper, upperOK := parseSummaryBound(e.Part.Type, s.UpperBound)

	switch e.Op {
	case OpNotNull:
		return true
	case OpNE, OpNotIn:
		return true
	case OpLT:
		if lowerOK {
			if cmp, ok := table.Compare(lower, e.Literals[0]); ok && cmp >= 0 {
				return false
			}
		}
		return true
	case OpLE:
		if lowerOK {
			if cmp, ok := table.Compare(lower, e.Literals[0]); ok && cmp > 0 {
				return false
			}
		}
		return true
	case OpGT:
		if upperOK {
			if cmp, ok := table.Compare(upper, e.Literals[0]); ok && cmp <= 0 {
				return false
			}
		}
		return true
	case OpGE:
		if upperOK {
			if cmp, ok := table.Compare(upper, e.Literals[0]); ok && cmp < 0 {
				return false
			}
		}
		return true
	case OpEQ:
		return inRange(e.Literals[0], lower, lowerOK, upper, upperOK)
	case OpIn:
		for _, lit := range e.Literals {
			if inRange(lit, lower, lowerOK, upper, upperOK) {
				return true
			}
		}
		return false
	}
	return true
}

func parseSummaryBound(t table.Type, raw *string) (table.Value, bool) {
	if raw == nil {
		return table.Null(), false
	}
	v, err := table.ParseValue(t, *raw)
	if err != nil {
		return table.Null(), false
	}
	return v, true
}

// MatchesPartition evaluates a projected predicate against one concrete
// partition tuple. Because partition values are exact, comparisons here are
// decisive; only unparsable values fall back to might-match.
func MatchesPartition(e *Expr, partition map[string]string) bool {
	switch e.Op {
	case OpTrue:
		return true
	case OpFalse:
		return false
	case OpAnd:
		return MatchesPartition(e.Left, partition) && MatchesPartition(e.Right, partition)
	case OpOr:
		return MatchesPartition(e.Left, partition) || MatchesPartition(e.Right, partition)
	}
	if e.Part == nil {
		return true
	}
	raw, present := partition[e.Part.Name]

	switch e.Op {
	case OpIsNull:
		return !present
	case OpNotNull:
		return present
	}
	if !present {
		// A null partition value satisfies no comparison.
		return false
	}
	v, err := table.ParseValue(e.Part.Type, raw)
	if err != nil {
		return true
	}

	switch e.Op {
	case OpLT, OpLE, OpEQ, OpGE, OpGT, OpNE:
		cmp, ok := table.Compare(v, e.Literals[0])
		if !ok {
			return true
		}
		switch e.Op {
		case OpLT:
			return cmp < 0
		case OpLE:
			return cmp <= 0
		case OpEQ:
			return cmp == 0
		case OpGE:
			return cmp >= 0
		case OpGT:
			return cmp > 0
		case OpNE:
			return cmp != 0
		}
	case OpIn, OpNotIn:
		found := false
		for _, lit := range e.Literals {
			if cmp, ok := table.Compare(v, lit); ok && cmp == 0 {
				found = true
				break
			}
		}
		if e.Op == OpIn {
			return found
		}
		return !found
	}
	return true
}
