package lsl

import "strings"

// Predicate matches a StreamDescriptor. Predicates compose with And/Not;
// the Supervisor builds the exclusion predicate from these primitives.
type Predicate func(d StreamDescriptor) bool

// NameEquals matches StreamDescriptor.Name exactly.
func NameEquals(name string) Predicate {
	return func(d StreamDescriptor) bool { return d.Name == name }
}

// TypeEquals matches StreamDescriptor.ContentType exactly.
func TypeEquals(contentType string) Predicate {
	return func(d StreamDescriptor) bool { return d.ContentType == contentType }
}

// HostnameEquals matches StreamDescriptor.Hostname exactly.
func HostnameEquals(hostname string) Predicate {
	return func(d StreamDescriptor) bool { return d.Hostname == hostname }
}

// ChannelCountEquals matches StreamDescriptor.ChannelCount exactly.
func ChannelCountEquals(n int) Predicate {
	return func(d StreamDescriptor) bool { return d.ChannelCount == n }
}

// NameStartsWith matches a name prefix, used to exclude "_relay_"/"_monitor_"
// streams.
func NameStartsWith(prefix string) Predicate {
	return func(d StreamDescriptor) bool { return strings.HasPrefix(d.Name, prefix) }
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(d StreamDescriptor) bool { return !p(d) }
}

// And composes predicates with logical AND; an empty list matches everything.
func And(preds ...Predicate) Predicate {
	return func(d StreamDescriptor) bool {
		for _, p := range preds {
			if !p(d) {
				return false
			}
		}
		return true
	}
}

// Or composes predicates with logical OR; an empty list matches nothing.
func Or(preds ...Predicate) Predicate {
	return func(d StreamDescriptor) bool {
		for _, p := range preds {
			if p(d) {
				return true
			}
		}
		return false
	}
}

// RelayExclusionPredicate is the minimum predicate composition a Relay
// Supervisor must apply: exclude self-generated relay and
// monitor streams and the control/marker channel, to avoid feedback loops.
func RelayExclusionPredicate(localHostname string, allowNonLocal bool) Predicate {
	base := And(
		Not(NameStartsWith("_relay_")),
		Not(NameStartsWith("_monitor_")),
		Not(TypeEquals("control")),
		Not(TypeEquals("Markers")),
	)
	if allowNonLocal {
		return base
	}
	return And(base, HostnameEquals(localHostname))
}

// MonitorAggregationPredicate matches monitor outlets.
func MonitorAggregationPredicate() Predicate {
	return NameStartsWith("_monitor_")
}
