package streams

// FieldValue is one field/value pair inside a stream entry. A plain slice
// (rather than a map) preserves the insertion order XADD received them in,
// which XRANGE must echo back.
type FieldValue struct {
	Field string
	Value string
}
