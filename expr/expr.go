// Package expr provides the filter predicate tree used by scan planning:
// unbound predicates over column names, binding against a schema, inclusive
// projection onto partition transforms, and three-valued evaluation against
// file and manifest statistics.
package expr

import (
	"fmt"
	"strings"

	"floe/table"
)

// Op tags a predicate node. One tagged variant covers the whole tree; there
// is no per-type subclassing.
type Op int

const (
	OpTrue Op = iota
	OpFalse
	OpAnd
	OpOr
	OpNot
	OpIsNull
	OpNotNull
	OpLT
	OpLE
	OpEQ
	OpGE
	OpGT
	OpNE
	OpIn
	OpNotIn
)

// PartField is a bound reference to one partition field: its position in
// the spec, its transform, and the type of the transform output.
type PartField struct {
	Pos       int
	Name      string
	SourceID  int
	Transform table.Transform
	Type      table.Type
}

// Expr is one node of a predicate tree. Leaves reference either a column by
// name (unbound), a schema field (bound), or a partition field (projected).
type Expr struct {
	Op          Op
	Left, Right *Expr // and / or
	Child       *Expr // not
	Column      string
	Field       table.Field // set once bound
	Part        *PartField  // set once projected
	Literals    []table.Value
	bound       bool
}

func True() *Expr  { return &Expr{Op: OpTrue} }
func False() *Expr { return &Expr{Op: OpFalse} }

func And(l, r *Expr) *Expr { return &Expr{Op: OpAnd, Left: l, Right: r} }
func Or(l, r *Expr) *Expr  { return &Expr{Op: OpOr, Left: l, Right: r} }
func Not(c *Expr) *Expr    { return &Expr{Op: OpNot, Child: c} }

func LessThan(col string, v table.Value) *Expr {
	return &Expr{Op: OpLT, Column: col, Literals: []table.Value{v}}
}

func LessThanOrEqual(col string, v table.Value) *Expr {
	return &Expr{Op: OpLE, Column: col, Literals: []table.Value{v}}
}

func Equal(col string, v table.Value) *Expr {
	return &Expr{Op: OpEQ, Column: col, Literals: []table.Value{v}}
}

func GreaterThanOrEqual(col string, v table.Value) *Expr {
	return &Expr{Op: OpGE, Column: col, Literals: []table.Value{v}}
}

func GreaterThan(col string, v table.Value) *Expr {
	return &Expr{Op: OpGT, Column: col, Literals: []table.Value{v}}
}

func NotEqual(col string, v table.Value) *Expr {
	return &Expr{Op: OpNE, Column: col, Literals: []table.Value{v}}
}

func In(col string, vs ...table.Value) *Expr {
	return &Expr{Op: OpIn, Column: col, Literals: vs}
}

func NotIn(col string, vs ...table.Value) *Expr {
	return &Expr{Op: OpNotIn, Column: col, Literals: vs}
}

func IsNull(col string) *Expr  { return &Expr{Op: OpIsNull, Column: col} }
func NotNull(col string) *Expr { return &Expr{Op: OpNotNull, Column: col} }

func (e *Expr) String() string {
	switch e.Op {
	case OpTrue:
		return "true"
	case OpFalse:
		return "false"
	case OpAnd:
		return fmt.Sprintf("(%s AND %s)", e.Left, e.Right)
	case OpOr:
		return fmt.Sprintf("(%s OR %s)", e.Left, e.Right)
	case OpNot:
		return fmt.Sprintf("NOT %s", e.Child)
	}
	name := e.Column
	if e.Part != nil {
		name = e.Part.Name
	} else if e.bound {
		name = fmt.Sprintf("%s#%d", e.Field.Name, e.Field.ID)
	}
	switch e.Op {
	case OpIsNull:
		return name + " IS NULL"
	case OpNotNull:
		return name + " IS NOT NULL"
	case OpIn, OpNotIn:
		vals := make([]string, len(e.Literals))
		for i, v := range e.Literals {
			vals[i], _ = table.FormatValue(v)
		}
		op := "IN"
		if e.Op == OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", name, op, strings.Join(vals, ", "))
	}
	ops := map[Op]string{OpLT: "<", OpLE: "<=", OpEQ: "=", OpGE: ">=", OpGT: ">", OpNE: "!="}
	val, _ := table.FormatValue(e.Literals[0])
	return fmt.Sprintf("%s %s %s", name, ops[e.Op], val)
}

// Bind resolves column names against schema and rewrites the tree into
// negation-normal form so evaluators never see NOT. Unknown columns fail;
// resolution is by name on the given schema, but the bound reference is the
// field id, which stays valid across renames.
func (e *Expr) Bind(schema *table.Schema) (*Expr, error) {
	return bind(e, schema, false)
}

func bind(e *Expr, schema *table.Schema, negated bool) (*Expr, error) {
	switch e.Op {
	case OpTrue, OpFalse:
		op := e.Op
		if negated {
			op = negate(op)
		}
		return &Expr{Op: op, bound: true}, nil
	case OpNot:
		return bind(e.Child, schema, !negated)
	case OpAnd, OpOr:
		l, err := bind(e.Left, schema, negated)
		if err != nil {
			return nil, err
		}
		r, err := bind(e.Right, schema, negated)
		if err != nil {
			return nil, err
		}
		op := e.Op
		if negated { // De Morgan
			op = negate(op)
		}
		return &Expr{Op: op, Left: l, Right: r, bound: true}, nil
	}

	field, ok := schema.FieldByName(e.Column)
	if !ok {
		return nil, fmt.Errorf("binding filter: no column %q in schema %d", e.Column, schema.SchemaID)
	}
	op := e.Op
	if negated {
		op = negate(op)
	}
	return &Expr{Op: op, Field: field, Literals: e.Literals, bound: true}, nil
}

func negate(op Op) Op {
	switch op {
	case OpTrue:
		return OpFalse
	case OpFalse:
		return OpTrue
	case OpAnd:
		return OpOr
	case OpOr:
		return OpAnd
	case OpIsNull:
		return OpNotNull
	case OpNotNull:
		return OpIsNull
	case OpLT:
		return OpGE
	case OpLE:
		return OpGT
	case OpEQ:
		return OpNE
	case OpNE:
		return OpEQ
	case OpGE:
		return OpLT
	case OpGT:
		return OpLE
	case OpIn:
		return OpNotIn
	case OpNotIn:
		return OpIn
	}
	return op
}

// RebindTo rebinds a bound expression onto another schema version by field
// id, so a filter written against the current schema still applies to a
// snapshot with older column names.
func (e *Expr) RebindTo(schema *table.Schema) *Expr {
	switch e.Op {
	case OpAnd, OpOr:
		return &Expr{Op: e.Op, Left: e.Left.RebindTo(schema), Right: e.Right.RebindTo(schema), bound: true}
	case OpTrue, OpFalse:
		return e
	}
	out := *e
	if f, ok := schema.FieldByID(e.Field.ID); ok {
		out.Field = f
	}
	return &out
}
