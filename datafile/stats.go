package datafile

import (
	"fmt"
	"time"

	"floe/manifest"
	"floe/table"
)

// columnStats accumulates the per-column counters and bounds recorded in a
// data file description.
type columnStats struct {
	schema *table.Schema
	counts map[int]int64
	nulls  map[int]int64
	lower  map[int]table.Value
	upper  map[int]table.Value
}

func newColumnStats(schema *table.Schema) *columnStats {
	return &columnStats{
		schema: schema,
		counts: make(map[int]int64),
		nulls:  make(map[int]int64),
		lower:  make(map[int]table.Value),
		upper:  make(map[int]table.Value),
	}
}

func (s *columnStats) observe(row Row) error {
	for _, field := range s.schema.Fields {
		v, err := toValue(field.Type, row[field.Name])
		if err != nil {
			return fmt.Errorf("column %s: %w", field.Name, err)
		}
		s.counts[field.ID]++
		if v.IsNull() {
			if field.Required {
				return fmt.Errorf("column %s: null in required column", field.Name)
			}
			s.nulls[field.ID]++
			continue
		}
		if cur, ok := s.lower[field.ID]; !ok {
			s.lower[field.ID] = v
			s.upper[field.ID] = v
		} else {
			if cmp, ok := table.Compare(v, cur); ok && cmp < 0 {
				s.lower[field.ID] = v
			}
			if cmp, ok := table.Compare(v, s.upper[field.ID]); ok && cmp > 0 {
				s.upper[field.ID] = v
			}
		}
	}
	return nil
}

func (s *columnStats) fill(df *manifest.DataFile) {
	df.ValueCounts = make(map[int]int64, len(s.counts))
	df.NullValueCounts = make(map[int]int64, len(s.counts))
	df.LowerBounds = make(map[int][]byte, len(s.lower))
	df.UpperBounds = make(map[int][]byte, len(s.upper))
	for id, n := range s.counts {
		df.ValueCounts[id] = n
		df.NullValueCounts[id] = s.nulls[id]
	}
	for id, v := range s.lower {
		if raw := table.EncodeBound(v); raw != nil {
			df.LowerBounds[id] = raw
		}
	}
	for id, v := range s.upper {
		if raw := table.EncodeBound(v); raw != nil {
			df.UpperBounds[id] = raw
		}
	}
}

// toValue converts one parquet-bound Go value into the tagged
// representation used for transforms and statistics.
func toValue(t table.Type, v any) (table.Value, error) {
	if v == nil {
		return table.Null(), nil
	}
	switch table.ValueKind(t) {
	case table.KindBool:
		if b, ok := v.(bool); ok {
			return table.BoolValue(b), nil
		}
	case table.KindInt:
		switch n := v.(type) {
		case int:
			return table.IntValue(int32(n)), nil
		case int32:
			return table.IntValue(n), nil
		case int64:
			return table.IntValue(int32(n)), nil
		}
	case table.KindLong:
		switch n := v.(type) {
		case int:
			return table.LongValue(int64(n)), nil
		case int32:
			return table.LongValue(int64(n)), nil
		case int64:
			return table.LongValue(n), nil
		case time.Time:
			return table.LongValue(n.UnixMilli()), nil
		}
	case table.KindFloat:
		switch n := v.(type) {
		case float32:
			return table.FloatValue(float64(n)), nil
		case float64:
			return table.FloatValue(n), nil
		}
	case table.KindString:
		if s, ok := v.(string); ok {
			return table.StringValue(s), nil
		}
	case table.KindBytes:
		if b, ok := v.([]byte); ok {
			return table.BytesValue(b), nil
		}
	}
	return table.Null(), fmt.Errorf("value %T not assignable to %s", v, t)
}
