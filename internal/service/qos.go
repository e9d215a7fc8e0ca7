package service

// Constraints is the serializable QoS requirement carried by a query.
type Constraints struct {
	Attributes []string
}

// Predicate decides whether an entry satisfies a query's QoS requirement.
type Predicate func(Entry) bool

// Matcher turns query constraints into a predicate. Nodes are configured
// with a Matcher so the matching semantics can be swapped per deployment.
type Matcher func(Constraints) Predicate

// SubsetMatcher accepts entries whose QoS attributes include every required one.
// It is the default matcher.
func SubsetMatcher(c Constraints) Predicate {
	required := append([]string(nil), c.Attributes...)
	return func(e Entry) bool {
		have := make(map[string]struct{}, len(e.QoS))
		for _, q := range e.QoS {
			have[q] = struct{}{}
		}
		for _, r := range required {
			if _, ok := have[r]; !ok {
				return false
			}
		}
		return true
	}
}

// ExactMatcher accepts entries whose QoS attribute set equals the required set.
func ExactMatcher(c Constraints) Predicate {
	want := toSet(c.Attributes)
	return func(e Entry) bool {
		have := toSet(e.QoS)
		if len(have) != len(want) {
			return false
		}
		for q := range want {
			if _, ok := have[q]; !ok {
				return false
			}
		}
		return true
	}
}

// AnyMatcher ignores constraints.
func AnyMatcher(Constraints) Predicate {
	return func(Entry) bool { return true }
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
