package filter

// Comparator names one bound of a Range filter.
type Comparator string

const (
	GT  Comparator = "gt"
	GTE Comparator = "gte"
	LT  Comparator = "lt"
	LTE Comparator = "lte"
)

// FieldFilter is one property's constraint within a Filter: an equality
// value, a one-of set, or a range over any non-empty subset of
// {gt,gte,lt,lte}.
type FieldFilter struct {
	// exactly one of these is populated, enforced by the constructors below.
	equality *Scalar
	oneOf    []Scalar
	ranges   map[Comparator]Scalar
}

// Equality builds an equality FieldFilter.
func Equality(s Scalar) FieldFilter {
	return FieldFilter{equality: &s}
}

// OneOf builds a one-of FieldFilter: matches if any listed value equals.
func OneOf(values ...Scalar) FieldFilter {
	return FieldFilter{oneOf: values}
}

// Range builds a range FieldFilter from a non-empty set of bounds.
func Range(bounds map[Comparator]Scalar) FieldFilter {
	return FieldFilter{ranges: bounds}
}

// IsEquality, IsOneOf, IsRange classify a FieldFilter's kind.
func (f FieldFilter) IsEquality() bool { return f.equality != nil }
func (f FieldFilter) IsOneOf() bool    { return f.oneOf != nil }
func (f FieldFilter) IsRange() bool    { return f.ranges != nil }

// EqualityValue returns the equality value and whether this filter is one.
func (f FieldFilter) EqualityValue() (Scalar, bool) {
	if f.equality == nil {
		return Scalar{}, false
	}
	return *f.equality, true
}

// Matches reports whether value satisfies this field filter.
func (f FieldFilter) Matches(value Scalar) bool {
	switch {
	case f.equality != nil:
		return value.Equal(*f.equality)
	case f.oneOf != nil:
		for _, v := range f.oneOf {
			if value.Equal(v) {
				return true
			}
		}
		return false
	case f.ranges != nil:
		for cmp, bound := range f.ranges {
			if value.Kind != bound.Kind {
				return false
			}
			c := value.Compare(bound)
			switch cmp {
			case GT:
				if c <= 0 {
					return false
				}
			case GTE:
				if c < 0 {
					return false
				}
			case LT:
				if c >= 0 {
					return false
				}
			case LTE:
				if c > 0 {
					return false
				}
			}
		}
		return true
	default:
		return false
	}
}

// Filter is a conjunction of per-property constraints.
type Filter map[string]FieldFilter

// Matches reports whether indexed satisfies every entry of f. A property
// named in f but absent from indexed never matches (total function
// over the schema domain — missing is simply "doesn't match", not an
// error).
func (f Filter) Matches(indexed map[string]Scalar) bool {
	for prop, ff := range f {
		v, ok := indexed[prop]
		if !ok || !ff.Matches(v) {
			return false
		}
	}
	return true
}

// Set is a disjunction of Filters: a message matches if it matches any
// element.
type Set []Filter

// Matches reports whether indexed satisfies any filter in the set. An
// empty set matches everything (no constraint supplied).
func (fs Set) Matches(indexed map[string]Scalar) bool {
	if len(fs) == 0 {
		return true
	}
	for _, f := range fs {
		if f.Matches(indexed) {
			return true
		}
	}
	return false
}
