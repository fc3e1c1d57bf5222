package schema

// Record is one row mapped into model space. Records are immutable: writes
// go through the engine and produce fresh Records, never mutations of ones
// already handed out.
type Record struct {
	model   *Model
	fields  map[string]Value
	related map[string]Related
}

// NewRecord builds a Record over the given field values and resolved
// relations. Both maps are copied; related may be nil.
func NewRecord(m *Model, fields map[string]Value, related map[string]Related) *Record {
	r := &Record{
		model:  m,
		fields: make(map[string]Value, len(fields)),
	}
	for k, v := range fields {
		r.fields[k] = v
	}
	if len(related) > 0 {
		r.related = make(map[string]Related, len(related))
		for k, v := range related {
			r.related[k] = v
		}
	}
	return r
}

// Model returns the model this record belongs to.
func (r *Record) Model() *Model { return r.model }

// Get returns the named field value. The second return is false when the
// field was not part of the query's projection.
func (r *Record) Get(field string) (Value, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// ID returns the record's identifier value, or Null when the projection
// did not carry it.
func (r *Record) ID() Value {
	if v, ok := r.fields[r.model.PrimaryKey().Name]; ok {
		return v
	}
	return Null{}
}

// Fields returns a copy of the record's field values.
func (r *Record) Fields() map[string]Value {
	out := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Related returns the resolved relation by name. The second return is false
// when the query did not include the relation, which is distinct from a
// relation that was included and found empty or dangling.
func (r *Record) Related(name string) (Related, bool) {
	rel, ok := r.related[name]
	return rel, ok
}

// Related is the resolved form of one included relation on one record.
// Sealed: RelatedOne, RelatedMany, RelatedNone and RelatedAbsent are the
// only implementations.
type Related interface {
	related()
}

// RelatedOne is a to-one relation whose target row was found.
type RelatedOne struct {
	Record *Record
}

func (RelatedOne) related() {}

// RelatedMany is a to-many relation. Records is never nil; an empty result
// is an empty slice.
type RelatedMany struct {
	Records []*Record
}

func (RelatedMany) related() {}

// RelatedNone is a to-one relation whose foreign key is null: there is
// nothing to point at, and that is not an error.
type RelatedNone struct{}

func (RelatedNone) related() {}

// RelatedAbsent is a to-one relation whose foreign key holds Ref but no row
// with that key exists. The dangling reference is reported, not escalated:
// sibling fields and relations on the record stay intact.
type RelatedAbsent struct {
	Ref Value
}

func (RelatedAbsent) related() {}
