package table

import (
	"testing"
)

func TestParseTransform(t *testing.T) {
	tests := []struct {
		in      string
		want    Transform
		wantErr bool
	}{
		{in: "identity", want: Transform{Name: "identity"}},
		{in: "day", want: Transform{Name: "day"}},
		{in: "bucket[16]", want: Transform{Name: "bucket", N: 16}},
		{in: "truncate[4]", want: Transform{Name: "truncate", N: 4}},
		{in: "bucket[0]", wantErr: true},
		{in: "mod[3]", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseTransform(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTransform(%q): want error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseTransform(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseTransform(%q) = %v, want %v", tc.in, got, tc.want)
		}
		if got.String() != tc.in {
			t.Errorf("String() = %q, want %q", got.String(), tc.in)
		}
	}
}

func TestTransformApply(t *testing.T) {
	day := Transform{Name: "day"}
	// 2024-01-01T12:00:00Z in ms; day number 19723.
	v, ok := day.Apply(LongValue(1704110400000))
	if !ok || v.Int != 19723 {
		t.Fatalf("day(2024-01-01T12:00) = %v (ok=%v), want 19723", v.Int, ok)
	}

	year := Transform{Name: "year"}
	v, ok = year.Apply(LongValue(1704110400000))
	if !ok || v.Int != 54 {
		t.Fatalf("year(2024) = %v, want 54", v.Int)
	}

	trunc := Transform{Name: "truncate", N: 10}
	v, _ = trunc.Apply(LongValue(-7))
	if v.Int != -10 {
		t.Errorf("truncate[10](-7) = %d, want -10", v.Int)
	}
	v, _ = trunc.Apply(LongValue(27))
	if v.Int != 20 {
		t.Errorf("truncate[10](27) = %d, want 20", v.Int)
	}

	truncStr := Transform{Name: "truncate", N: 3}
	v, _ = truncStr.Apply(StringValue("warehouse"))
	if v.Str != "war" {
		t.Errorf("truncate[3](warehouse) = %q, want %q", v.Str, "war")
	}

	// Bucket is stable and within range.
	bucket := Transform{Name: "bucket", N: 8}
	a, _ := bucket.Apply(LongValue(1234))
	b, _ := bucket.Apply(LongValue(1234))
	if a.Int != b.Int {
		t.Error("bucket must be deterministic")
	}
	if a.Int < 0 || a.Int >= 8 {
		t.Errorf("bucket[8] out of range: %d", a.Int)
	}

	// Null maps to null through every transform.
	for _, tr := range []Transform{day, trunc, bucket, {Name: "identity"}} {
		v, ok := tr.Apply(Null())
		if !ok || !v.IsNull() {
			t.Errorf("%s(null) must be null", tr)
		}
	}
}

func TestCompare(t *testing.T) {
	if cmp, ok := Compare(IntValue(1), LongValue(2)); !ok || cmp != -1 {
		t.Errorf("int/long widen: got (%d,%v)", cmp, ok)
	}
	if _, ok := Compare(Null(), LongValue(2)); ok {
		t.Error("null comparisons must be unknown")
	}
	if _, ok := Compare(StringValue("a"), LongValue(2)); ok {
		t.Error("cross-kind comparisons must be unknown")
	}
	if cmp, ok := Compare(StringValue("a"), StringValue("b")); !ok || cmp != -1 {
		t.Errorf("string compare: got (%d,%v)", cmp, ok)
	}
}

func TestBoundRoundTrip(t *testing.T) {
	values := []struct {
		typ Type
		v   Value
	}{
		{TypeInt, IntValue(-5)},
		{TypeLong, LongValue(1 << 40)},
		{TypeDouble, FloatValue(3.25)},
		{TypeString, StringValue("2024-01-01")},
		{TypeBoolean, BoolValue(true)},
		{TypeDate, IntValue(19723)},
	}
	for _, tc := range values {
		got, err := DecodeBound(tc.typ, EncodeBound(tc.v))
		if err != nil {
			t.Fatalf("DecodeBound(%s): %v", tc.typ, err)
		}
		if cmp, ok := Compare(got, tc.v); !ok || cmp != 0 {
			t.Errorf("bound round-trip for %s: got %+v, want %+v", tc.typ, got, tc.v)
		}
	}
}

func TestCanPromote(t *testing.T) {
	allowed := [][2]Type{
		{TypeInt, TypeLong},
		{TypeFloat, TypeDouble},
		{Type("decimal(9,2)"), Type("decimal(12,2)")},
		{TypeString, TypeString},
	}
	for _, p := range allowed {
		if !CanPromote(p[0], p[1]) {
			t.Errorf("CanPromote(%s, %s) = false, want true", p[0], p[1])
		}
	}
	denied := [][2]Type{
		{TypeLong, TypeInt},
		{TypeDouble, TypeFloat},
		{TypeInt, TypeString},
		{Type("decimal(12,2)"), Type("decimal(9,2)")},
		{Type("decimal(9,2)"), Type("decimal(12,3)")},
	}
	for _, p := range denied {
		if CanPromote(p[0], p[1]) {
			t.Errorf("CanPromote(%s, %s) = true, want false", p[0], p[1])
		}
	}
}
