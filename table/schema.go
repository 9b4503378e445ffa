package table

// Field is a named, typed column with a field id that is stable across
// renames.
type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Required bool   `json:"required"`
	Doc      string `json:"doc,omitempty"`
}

// Schema is one immutable version of a table's column set, keyed by its
// schema id. Snapshots reference schemas by id only.
type Schema struct {
	SchemaID int     `json:"schema-id"`
	Fields   []Field `json:"fields"`
}

// FieldByID returns the field with the given id.
func (s *Schema) FieldByID(id int) (Field, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByName returns the field with the given name.
func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HighestFieldID returns the largest field id in the schema, 0 if empty.
func (s *Schema) HighestFieldID() int {
	max := 0
	for _, f := range s.Fields {
		if f.ID > max {
			max = f.ID
		}
	}
	return max
}

func (s *Schema) clone() Schema {
	out := Schema{SchemaID: s.SchemaID, Fields: make([]Field, len(s.Fields))}
	copy(out.Fields, s.Fields)
	return out
}

// Equal reports logical equality of two schemas.
func (s *Schema) Equal(other *Schema) bool {
	if s.SchemaID != other.SchemaID || len(s.Fields) != len(other.Fields) {
		return false
	}
	for i := range s.Fields {
		if s.Fields[i] != other.Fields[i] {
			return false
		}
	}
	return true
}

// SortDirection orders a sort field ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// NullOrder places nulls first or last within a sort field.
type NullOrder string

const (
	NullsFirst NullOrder = "nulls-first"
	NullsLast  NullOrder = "nulls-last"
)

// SortField sorts by the transform of a source field.
type SortField struct {
	SourceID  int           `json:"source-id"`
	Transform string        `json:"transform"`
	Direction SortDirection `json:"direction"`
	NullOrder NullOrder     `json:"null-order"`
}

// SortOrder is an ordered list of sort fields keyed by order id. Order id 0
// is the unsorted order.
type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

// UnsortedOrder is the implicit order of tables without a declared sort.
var UnsortedOrder = SortOrder{OrderID: 0, Fields: []SortField{}}
