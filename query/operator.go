package query

// Operator is a trailing filter operator token, e.g. the "gt" in "age__gt"
type Operator string

const (
	// OpEq is bare equality; it compiles to the raw value without an operator wrapper
	OpEq Operator = ""
	// OpRaw merges its (document) value verbatim into the compiled query
	OpRaw Operator = RawKey

	OpNe     Operator = "ne"
	OpGt     Operator = "gt"
	OpGte    Operator = "gte"
	OpLt     Operator = "lt"
	OpLte    Operator = "lte"
	OpIn     Operator = "in"
	OpNin    Operator = "nin"
	OpMod    Operator = "mod"
	OpAll    Operator = "all"
	OpSize   Operator = "size"
	OpExists Operator = "exists"
	OpNot    Operator = "not"

	OpWithinDistance          Operator = "within_distance"
	OpWithinSphericalDistance Operator = "within_spherical_distance"
	OpWithinBox               Operator = "within_box"
	OpWithinPolygon           Operator = "within_polygon"
	OpNear                    Operator = "near"
	OpNearSphere              Operator = "near_sphere"
	OpMaxDistance             Operator = "max_distance"
	OpGeoWithin               Operator = "geo_within"
	OpGeoWithinBox            Operator = "geo_within_box"
	OpGeoWithinPolygon        Operator = "geo_within_polygon"
	OpGeoWithinCenter         Operator = "geo_within_center"
	OpGeoWithinSphere         Operator = "geo_within_sphere"
	OpGeoIntersects           Operator = "geo_intersects"

	OpContains    Operator = "contains"
	OpIContains   Operator = "icontains"
	OpStartsWith  Operator = "startswith"
	OpIStartsWith Operator = "istartswith"
	OpEndsWith    Operator = "endswith"
	OpIEndsWith   Operator = "iendswith"
	OpExact       Operator = "exact"
	OpIExact      Operator = "iexact"

	// OpMatch compiles to $elemMatch
	OpMatch Operator = "match"
)

// negationToken marks a negated constraint, e.g. "age__not__gt"
const negationToken = "not"

var (
	comparisonOperators = []Operator{OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpMod, OpAll, OpSize, OpExists, OpNot}
	geoOperators        = []Operator{
		OpWithinDistance, OpWithinSphericalDistance, OpWithinBox, OpWithinPolygon, OpNear, OpNearSphere,
		OpMaxDistance, OpGeoWithin, OpGeoWithinBox, OpGeoWithinPolygon, OpGeoWithinCenter, OpGeoWithinSphere,
		OpGeoIntersects,
	}
	stringOperators = []Operator{OpContains, OpIContains, OpStartsWith, OpIStartsWith, OpEndsWith, OpIEndsWith, OpExact, OpIExact}
	customOperators = []Operator{OpMatch}

	matchOperators = func() map[Operator]struct{} {
		ops := map[Operator]struct{}{}
		for _, group := range [][]Operator{comparisonOperators, geoOperators, stringOperators, customOperators} {
			for _, op := range group {
				ops[op] = struct{}{}
			}
		}
		return ops
	}()
)

func contains(ops []Operator, op Operator) bool {
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}

// IsComparison returns true if the operator is a native comparison operator
func (o Operator) IsComparison() bool {
	return contains(comparisonOperators, o)
}

// IsGeo returns true if the operator is a symbolic geo operator
func (o Operator) IsGeo() bool {
	return contains(geoOperators, o)
}

// IsString returns true if the operator is a string pattern operator
func (o Operator) IsString() bool {
	return contains(stringOperators, o)
}

// IsCustom returns true if the operator is a custom (non-native) operator
func (o Operator) IsCustom() bool {
	return contains(customOperators, o)
}

// Valid returns true if the operator is part of the recognized vocabulary
func (o Operator) Valid() bool {
	if o == OpEq || o == OpRaw {
		return true
	}
	_, ok := matchOperators[o]
	return ok
}

// singular operators coerce a single value through the field
func (o Operator) singular() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpNot:
		return true
	}
	return o.IsString()
}

// membership operators coerce each element of a list value through the field
func (o Operator) membership() bool {
	switch o {
	case OpIn, OpNin, OpAll, OpNear:
		return true
	}
	return false
}

// LookupOperator returns the operator matching the token (if it is part of the vocabulary)
func LookupOperator(token string) (Operator, bool) {
	op := Operator(token)
	if _, ok := matchOperators[op]; ok {
		return op, true
	}
	return "", false
}

// UpdateOperator is a leading update operator token, e.g. the "set" in "set__name"
type UpdateOperator string

const (
	UpdateSet         UpdateOperator = "set"
	UpdateUnset       UpdateOperator = "unset"
	UpdateInc         UpdateOperator = "inc"
	UpdateDec         UpdateOperator = "dec"
	UpdatePop         UpdateOperator = "pop"
	UpdatePush        UpdateOperator = "push"
	UpdatePushAll     UpdateOperator = "push_all"
	UpdatePull        UpdateOperator = "pull"
	UpdatePullAll     UpdateOperator = "pull_all"
	UpdateAddToSet    UpdateOperator = "add_to_set"
	UpdateSetOnInsert UpdateOperator = "set_on_insert"
	// UpdateRaw merges its (document) value verbatim into the compiled update
	UpdateRaw UpdateOperator = RawKey
)

var updateOperators = map[UpdateOperator]string{
	UpdateSet:         "set",
	UpdateUnset:       "unset",
	UpdateInc:         "inc",
	UpdateDec:         "inc",
	UpdatePop:         "pop",
	UpdatePush:        "push",
	UpdatePushAll:     "pushAll",
	UpdatePull:        "pull",
	UpdatePullAll:     "pullAll",
	UpdateAddToSet:    "addToSet",
	UpdateSetOnInsert: "setOnInsert",
}

// Valid returns true if the operator is part of the recognized update vocabulary
func (u UpdateOperator) Valid() bool {
	if u == UpdateRaw {
		return true
	}
	_, ok := updateOperators[u]
	return ok
}

// Canonical returns the native operator name (without the leading '$')
func (u UpdateOperator) Canonical() string {
	return updateOperators[u]
}

// LookupUpdateOperator returns the update operator matching the token (if it is part of the vocabulary)
func LookupUpdateOperator(token string) (UpdateOperator, bool) {
	op := UpdateOperator(token)
	if _, ok := updateOperators[op]; ok {
		return op, true
	}
	return "", false
}
