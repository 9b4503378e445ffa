package table

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"time"
)

// PartitionField derives one partition value from a source column via a
// transform.
type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// PartitionSpec is an ordered list of partition fields keyed by spec id.
// Multiple specs may coexist across a table's history.
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// UnpartitionedSpec is the spec of tables without declared partitioning.
var UnpartitionedSpec = PartitionSpec{SpecID: 0, Fields: []PartitionField{}}

// IsUnpartitioned reports whether the spec has no partition fields.
func (s *PartitionSpec) IsUnpartitioned() bool { return len(s.Fields) == 0 }

// FieldBySourceID returns the partition fields derived from a source column.
func (s *PartitionSpec) FieldsBySourceID(sourceID int) []PartitionField {
	var out []PartitionField
	for _, f := range s.Fields {
		if f.SourceID == sourceID {
			out = append(out, f)
		}
	}
	return out
}

func (s *PartitionSpec) clone() PartitionSpec {
	out := PartitionSpec{SpecID: s.SpecID, Fields: make([]PartitionField, len(s.Fields))}
	copy(out.Fields, s.Fields)
	return out
}

// Transform maps source column values to partition values.
type Transform struct {
	Name string // identity, bucket, truncate, year, month, day, hour, void
	N    int    // bucket count or truncate width
}

var paramTransformRe = regexp.MustCompile(`^(bucket|truncate)\[(\d+)\]$`)

// ParseTransform parses the canonical transform notation, e.g. "identity",
// "bucket[16]", "truncate[4]", "day".
func ParseTransform(s string) (Transform, error) {
	switch s {
	case "identity", "year", "month", "day", "hour", "void":
		return Transform{Name: s}, nil
	}
	if m := paramTransformRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[2])
		if n <= 0 {
			return Transform{}, fmt.Errorf("transform %q: parameter must be positive", s)
		}
		return Transform{Name: m[1], N: n}, nil
	}
	return Transform{}, fmt.Errorf("unknown transform %q", s)
}

func (t Transform) String() string {
	switch t.Name {
	case "bucket", "truncate":
		return fmt.Sprintf("%s[%d]", t.Name, t.N)
	}
	return t.Name
}

// ResultType is the type of the transform's output for a source column of
// type src.
func (t Transform) ResultType(src Type) Type {
	switch t.Name {
	case "identity", "truncate":
		return src
	case "bucket", "year", "month", "hour":
		return TypeInt
	case "day":
		return TypeDate
	case "void":
		return src
	}
	return src
}

// PreservesOrder reports whether the transform is monotone in its input,
// which permits projecting range predicates through it.
func (t Transform) PreservesOrder() bool {
	switch t.Name {
	case "identity", "truncate", "year", "month", "day", "hour":
		return true
	}
	return false
}

// Apply computes the partition value for v. ok is false when the transform
// cannot be applied to the value's kind; null maps to null.
func (t Transform) Apply(v Value) (Value, bool) {
	if v.IsNull() {
		return Null(), true
	}
	switch t.Name {
	case "identity":
		return v, true
	case "void":
		return Null(), true
	case "bucket":
		h := fnv.New32a()
		h.Write(EncodeBound(v))
		return IntValue(int32(h.Sum32() % uint32(t.N))), true
	case "truncate":
		switch v.Kind {
		case KindInt, KindLong:
			r := v.Int % int64(t.N)
			if r < 0 {
				r += int64(t.N)
			}
			return Value{Kind: v.Kind, Int: v.Int - r}, true
		case KindString:
			if len(v.Str) > t.N {
				return StringValue(v.Str[:t.N]), true
			}
			return v, true
		}
		return Null(), false
	case "year", "month", "day", "hour":
		ts, ok := timeOf(v)
		if !ok {
			return Null(), false
		}
		switch t.Name {
		case "year":
			return IntValue(int32(ts.Year() - 1970)), true
		case "month":
			return IntValue(int32((ts.Year()-1970)*12 + int(ts.Month()) - 1)), true
		case "day":
			return IntValue(int32(ts.Unix() / 86400)), true
		case "hour":
			return IntValue(int32(ts.Unix() / 3600)), true
		}
	}
	return Null(), false
}

// timeOf interprets a value as an instant: KindInt is days since epoch
// (date), KindLong is milliseconds since epoch (timestamp).
func timeOf(v Value) (time.Time, bool) {
	switch v.Kind {
	case KindInt:
		return time.Unix(v.Int*86400, 0).UTC(), true
	case KindLong:
		return time.UnixMilli(v.Int).UTC(), true
	}
	return time.Time{}, false
}
