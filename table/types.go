package table

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Type is the physical type of a schema field, in its canonical string
// form: "boolean", "int", "long", "float", "double", "date", "time",
// "timestamp", "timestamptz", "string", "uuid", "binary", "fixed[N]",
// "decimal(P,S)".
type Type string

const (
	TypeBoolean     Type = "boolean"
	TypeInt         Type = "int"
	TypeLong        Type = "long"
	TypeFloat       Type = "float"
	TypeDouble      Type = "double"
	TypeDate        Type = "date"
	TypeTime        Type = "time"
	TypeTimestamp   Type = "timestamp"
	TypeTimestampTz Type = "timestamptz"
	TypeString      Type = "string"
	TypeUUID        Type = "uuid"
	TypeBinary      Type = "binary"
)

var (
	decimalRe = regexp.MustCompile(`^decimal\((\d+),\s*(\d+)\)$`)
	fixedRe   = regexp.MustCompile(`^fixed\[(\d+)\]$`)
)

// Valid reports whether t is a supported primitive type.
func (t Type) Valid() bool {
	switch t {
	case TypeBoolean, TypeInt, TypeLong, TypeFloat, TypeDouble,
		TypeDate, TypeTime, TypeTimestamp, TypeTimestampTz,
		TypeString, TypeUUID, TypeBinary:
		return true
	}
	return decimalRe.MatchString(string(t)) || fixedRe.MatchString(string(t))
}

// Decimal returns precision and scale for a decimal type.
func (t Type) Decimal() (precision, scale int, ok bool) {
	m := decimalRe.FindStringSubmatch(string(t))
	if m == nil {
		return 0, 0, false
	}
	precision, _ = strconv.Atoi(m[1])
	scale, _ = strconv.Atoi(m[2])
	return precision, scale, true
}

// CanPromote reports whether a column of type from may evolve to type to.
// The promotion table is fixed: identity, int to long, float to double, and
// decimal precision widening at the same scale.
func CanPromote(from, to Type) bool {
	if from == to {
		return true
	}
	switch {
	case from == TypeInt && to == TypeLong:
		return true
	case from == TypeFloat && to == TypeDouble:
		return true
	}
	fp, fs, fok := from.Decimal()
	tp, ts, tok := to.Decimal()
	return fok && tok && fs == ts && tp >= fp
}

// Kind discriminates the value variants held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt   // int, date (days since epoch)
	KindLong  // long, time, timestamp, timestamptz, decimal (unscaled)
	KindFloat // float, double
	KindString
	KindBytes // binary, fixed, uuid
)

// Value is a tagged variant over the supported physical types. All
// comparisons in bounds evaluation go through Compare; there is no per-type
// subclassing.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte
}

func Null() Value                { return Value{Kind: KindNull} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, Bool: v} }
func IntValue(v int32) Value     { return Value{Kind: KindInt, Int: int64(v)} }
func LongValue(v int64) Value    { return Value{Kind: KindLong, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }
func BytesValue(v []byte) Value  { return Value{Kind: KindBytes, Bytes: v} }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Compare orders a against b. ok is false when the values are not mutually
// comparable (different kinds, or either is null); callers must treat that
// as unknown, never as equal.
func Compare(a, b Value) (cmp int, ok bool) {
	if a.Kind == KindNull || b.Kind == KindNull {
		return 0, false
	}
	// int and long widen to a common comparison.
	if (a.Kind == KindInt || a.Kind == KindLong) && (b.Kind == KindInt || b.Kind == KindLong) {
		switch {
		case a.Int < b.Int:
			return -1, true
		case a.Int > b.Int:
			return 1, true
		}
		return 0, true
	}
	if a.Kind != b.Kind {
		return 0, false
	}
	switch a.Kind {
	case KindBool:
		switch {
		case !a.Bool && b.Bool:
			return -1, true
		case a.Bool && !b.Bool:
			return 1, true
		}
		return 0, true
	case KindFloat:
		if math.IsNaN(a.Float) || math.IsNaN(b.Float) {
			return 0, false
		}
		switch {
		case a.Float < b.Float:
			return -1, true
		case a.Float > b.Float:
			return 1, true
		}
		return 0, true
	case KindString:
		return strings.Compare(a.Str, b.Str), true
	case KindBytes:
		return strings.Compare(string(a.Bytes), string(b.Bytes)), true
	}
	return 0, false
}

// ValueKind maps a type to the variant kind its values use.
func ValueKind(t Type) Kind {
	switch t {
	case TypeBoolean:
		return KindBool
	case TypeInt, TypeDate:
		return KindInt
	case TypeLong, TypeTime, TypeTimestamp, TypeTimestampTz:
		return KindLong
	case TypeFloat, TypeDouble:
		return KindFloat
	case TypeString:
		return KindString
	case TypeUUID, TypeBinary:
		return KindBytes
	}
	if _, _, ok := t.Decimal(); ok {
		return KindLong
	}
	if fixedRe.MatchString(string(t)) {
		return KindBytes
	}
	return KindNull
}

// EncodeBound serializes v for storage as a column bound. Integral values
// are little-endian fixed width, floats use their IEEE-754 bits, strings and
// bytes are stored raw.
func EncodeBound(v Value) []byte {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case KindInt:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.Int)))
		return b
	case KindLong:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.Int))
		return b
	case KindFloat:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float))
		return b
	case KindString:
		return []byte(v.Str)
	case KindBytes:
		return v.Bytes
	}
	return nil
}

// DecodeBound is the inverse of EncodeBound for a column of type t.
func DecodeBound(t Type, b []byte) (Value, error) {
	if b == nil {
		return Null(), nil
	}
	switch ValueKind(t) {
	case KindBool:
		if len(b) != 1 {
			return Null(), fmt.Errorf("boolean bound must be 1 byte, got %d", len(b))
		}
		return BoolValue(b[0] != 0), nil
	case KindInt:
		if len(b) != 4 {
			return Null(), fmt.Errorf("int bound must be 4 bytes, got %d", len(b))
		}
		return IntValue(int32(binary.LittleEndian.Uint32(b))), nil
	case KindLong:
		if len(b) != 8 {
			return Null(), fmt.Errorf("long bound must be 8 bytes, got %d", len(b))
		}
		return LongValue(int64(binary.LittleEndian.Uint64(b))), nil
	case KindFloat:
		if len(b) != 8 {
			return Null(), fmt.Errorf("float bound must be 8 bytes, got %d", len(b))
		}
		return FloatValue(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case KindString:
		return StringValue(string(b)), nil
	case KindBytes:
		return BytesValue(b), nil
	}
	return Null(), fmt.Errorf("no bound decoding for type %q", t)
}

// FormatValue renders v in the canonical string form used for partition
// values: decimal digits for numeric kinds, the raw text for strings.
func FormatValue(v Value) (string, bool) {
	switch v.Kind {
	case KindNull:
		return "", false
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	case KindInt, KindLong:
		return strconv.FormatInt(v.Int, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64), true
	case KindString:
		return v.Str, true
	case KindBytes:
		return string(v.Bytes), true
	}
	return "", false
}

// ParseValue parses the canonical string form back into a value of type t.
func ParseValue(t Type, s string) (Value, error) {
	switch ValueKind(t) {
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Null(), fmt.Errorf("parsing boolean %q: %w", s, err)
		}
		return BoolValue(b), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Null(), fmt.Errorf("parsing int %q: %w", s, err)
		}
		return IntValue(int32(i)), nil
	case KindLong:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Null(), fmt.Errorf("parsing long %q: %w", s, err)
		}
		return LongValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Null(), fmt.Errorf("parsing float %q: %w", s, err)
		}
		return FloatValue(f), nil
	case KindString:
		return StringValue(s), nil
	case KindBytes:
		return BytesValue([]byte(s)), nil
	}
	return Null(), fmt.Errorf("no value parsing for type %q", t)
}
