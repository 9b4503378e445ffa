package expr

import (
	"floe/table"
)

// PartFields resolves the bound partition references of a spec against a
// schema. An error in transform parsing is reported as an absent field so
// projection degrades to always-true rather than failing a scan.
func PartFields(spec *table.PartitionSpec, schema *table.Schema) []PartField {
	out := make([]PartField, 0, len(spec.Fields))
	for pos, pf := range spec.Fields {
		src, ok := schema.FieldByID(pf.SourceID)
		if !ok {
			continue
		}
		tr, err := table.ParseTransform(pf.Transform)
		if err != nil {
			continue
		}
		out = append(out, PartField{
			Pos:       pos,
			Name:      pf.Name,
			SourceID:  pf.SourceID,
			Transform: tr,
			Type:      tr.ResultType(src.Type),
		})
	}
	return out
}

// Project rewrites a bound predicate onto the outputs of the spec's
// partition transforms. Sub-predicates that cannot be expressed over a
// transform collapse to always-true: the projection is inclusive, so it may
// keep too much but never prunes a matching file.
func Project(bound *Expr, partFields []PartField) *Expr {
	switch bound.Op {
	case OpTrue, OpFalse:
		return bound
	case OpAnd:
		return And(Project(bound.Left, partFields), Project(bound.Right, partFields))
	case OpOr:
		l := Project(bound.Left, partFields)
		r := Project(bound.Right, partFields)
		// An OR is only as selective as both arms.
		if l.Op == OpTrue || r.Op == OpTrue {
			return True()
		}
		return Or(l, r)
	}

	// A source column may feed several partition fields; all projections
	// hold simultaneously.
	result := True()
	for i := range partFields {
		pf := &partFields[i]
		if pf.SourceID != bound.Field.ID {
			continue
		}
		if p := projectPredicate(bound, pf); p != nil {
			if result.Op == OpTrue {
				result = p
			} else {
				result = And(result, p)
			}
		}
	}
	return result
}

func projectPredicate(bound *Expr, pf *PartField) *Expr {
	part := func(op Op, lits []table.Value) *Expr {
		return &Expr{Op: op, Part: pf, Literals: lits, bound: true}
	}

	switch bound.Op {
	case OpIsNull, OpNotNull:
		// Every transform maps null to null and nothing else to null.
		return part(bound.Op, nil)
	}

	tr := pf.Transform
	switch bound.Op {
	case OpEQ:
		v, ok := tr.Apply(bound.Literals[0])
		if !ok {
			return nil
		}
		return part(OpEQ, []table.Value{v})
	case OpIn:
		lits := make([]table.Value, 0, len(bound.Literals))
		for _, l := range bound.Literals {
			v, ok := tr.Apply(l)
			if !ok {
				return nil
			}
			lits = append(lits, v)
		}
		return part(OpIn, lits)
	case OpLT, OpLE:
		if !tr.PreservesOrder() {
			return nil
		}
		v, ok := tr.Apply(bound.Literals[0])
		if !ok {
			return nil
		}
		// Strictness is lost through a many-to-one transform.
		return part(OpLE, []table.Value{v})
	case OpGT, OpGE:
		if !tr.PreservesOrder() {
			return nil
		}
		v, ok := tr.Apply(bound.Literals[0])
		if !ok {
			return nil
		}
		return part(OpGE, []table.Value{v})
	}
	// NE and NotIn cannot prune through a transform.
	return nil
}
