package repository

// Op enumerates the comparison operators supported by the filter language.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

// Condition is a single field predicate. Conditions in a query are ANDed.
type Condition struct {
	Field string
	Op    Op
	// Value is a string, float64 or bool, or a []interface{} of those for OpIn.
	Value interface{}
}

// SortField orders results by a document field.
type SortField struct {
	Field string
	Desc  bool
}

// Projection restricts the document fields returned to the caller. Include
// and Exclude are mutually exclusive apart from the id field.
type Projection struct {
	Include []string
	Exclude []string
}

func (p Projection) IsZero() bool {
	return len(p.Include) == 0 && len(p.Exclude) == 0
}

// DefaultLimit bounds list results when the caller supplies no usable limit.
const DefaultLimit = 100

// Query is the descriptor produced by the query translator and executed
// verbatim by the stores.
type Query struct {
	Where  []Condition
	Sort   []SortField
	Select Projection
	Skip   int
	Limit  int
	Count  bool
}
