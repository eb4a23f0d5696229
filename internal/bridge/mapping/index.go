// Package mapping builds and queries the bridge's Mapping Index: an
// immutable snapshot that answers "given a source endpoint and a
// concrete topic, which routing actions apply?"
package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/bridgeerr"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/topic"
)

// rule is one compiled, directional routing rule. A bidirectional
// Mapping compiles into two rules sharing the same MappingID.
type rule struct {
	mappingID  int64
	pattern    string
	template   string
	target     model.EndpointRef
	targetKind model.EndpointKind
}

// Index is an immutable compiled snapshot of the enabled mapping set.
// Safe for concurrent read access from any number of goroutines; a new
// Index is built and atomically swapped in on reconfiguration rather
// than mutated in place.
type Index struct {
	rulesBySource map[model.EndpointRef][]rule
}

// Build compiles an Index from the enabled mapping set and the enabled
// endpoint set. Returns a bridgeerr.ConfigInvalid-wrapped error if any
// mapping references a malformed pattern, an out-of-range template
// placeholder, or an endpoint id not present in endpoints.
func Build(mappings []model.Mapping, endpoints map[model.EndpointRef]model.EndpointKind) (*Index, error) {
	idx := &Index{rulesBySource: make(map[model.EndpointRef][]rule)}

	for _, m := range mappings {
		if !m.Enabled {
			continue
		}

		if _, ok := endpoints[m.Source]; !ok {
			return nil, fmt.Errorf("%w: mapping %d references unknown source endpoint %v", bridgeerr.ConfigInvalid, m.ID, m.Source)
		}
		if _, ok := endpoints[m.Target]; !ok {
			return nil, fmt.Errorf("%w: mapping %d references unknown target endpoint %v", bridgeerr.ConfigInvalid, m.ID, m.Target)
		}

		if err := compileInto(idx, m, m.Source, m.Target, m.SourceTopic, m.TargetTopic, endpoints); err != nil {
			return nil, err
		}

		if m.Direction == model.DirBidirectional {
			if err := compileInto(idx, m, m.Target, m.Source, m.TargetTopic, m.SourceTopic, endpoints); err != nil {
				return nil, err
			}
		}
	}

	for ref, rules := range idx.rulesBySource {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].mappingID < rules[j].mappingID })
		idx.rulesBySource[ref] = rules
	}

	return idx, nil
}

// compileInto validates and registers one directional rule: source
// publishes on sourceTopic, routed to target via targetTemplate.
func compileInto(idx *Index, m model.Mapping, source, target model.EndpointRef, sourceTopic, targetTemplate string, endpoints map[model.EndpointRef]model.EndpointKind) error {
	if err := topic.ValidatePattern(sourceTopic); err != nil {
		return fmt.Errorf("%w: mapping %d: %w", bridgeerr.ConfigInvalid, m.ID, err)
	}

	captureCount, hasTail := countCaptures(sourceTopic)
	if err := topic.ValidateTemplate(targetTemplate, captureCount, hasTail); err != nil {
		return fmt.Errorf("%w: mapping %d: %w", bridgeerr.ConfigInvalid, m.ID, err)
	}

	targetKind, ok := endpoints[target]
	if !ok {
		return fmt.Errorf("%w: mapping %d references unknown target endpoint %v", bridgeerr.ConfigInvalid, m.ID, target)
	}

	idx.rulesBySource[source] = append(idx.rulesBySource[source], rule{
		mappingID:  m.ID,
		pattern:    sourceTopic,
		template:   targetTemplate,
		target:     target,
		targetKind: targetKind,
	})

	return nil
}

// countCaptures reports how many '+' levels a (validated) pattern has
// and whether it ends in '#'.
func countCaptures(pattern string) (count int, hasTail bool) {
	for _, l := range strings.Split(pattern, "/") {
		switch l {
		case "+":
			count++
		case "#":
			hasTail = true
		}
	}
	return count, hasTail
}

// Lookup returns the ordered, deduplicated list of Routing Actions for
// a message arriving on source at topic t.
//
// Order is by mapping id ascending (guaranteed by Build's sort).
// Duplicate (target, topic) pairs are deduplicated, keeping the first
// (lowest mapping id) occurrence.
func (idx *Index) Lookup(source model.EndpointRef, t string) ([]model.RoutingAction, error) {
	rules := idx.rulesBySource[source]
	if len(rules) == 0 {
		return nil, nil
	}

	type dedupKey struct {
		target model.EndpointRef
		topic  string
	}
	seen := make(map[dedupKey]struct{}, len(rules))

	var actions []model.RoutingAction
	for _, r := range rules {
		m, matched, err := topic.MatchTopic(r.pattern, t)
		if err != nil {
			return nil, fmt.Errorf("%w: mapping %d: %w", bridgeerr.Internal, r.mappingID, err)
		}
		if !matched {
			continue
		}

		outTopic, err := topic.ApplyTemplate(r.template, m)
		if err != nil {
			return nil, fmt.Errorf("%w: mapping %d: %w", bridgeerr.Internal, r.mappingID, err)
		}

		key := dedupKey{target: r.target, topic: outTopic}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		actions = append(actions, model.RoutingAction{
			MappingID:  r.mappingID,
			Target:     r.target,
			TargetKind: r.targetKind,
			Topic:      outTopic,
		})
	}

	return actions, nil
}

// Subscriptions returns the union of source patterns across source's
// enabled rules — the MQTT subscription set for an MQTT source
// endpoint. Over-subscription (one pattern subsuming another) is left
// as-is rather than minimized.
func (idx *Index) Subscriptions(source model.EndpointRef) []string {
	rules := idx.rulesBySource[source]
	if len(rules) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(rules))
	var patterns []string
	for _, r := range rules {
		if _, ok := seen[r.pattern]; ok {
			continue
		}
		seen[r.pattern] = struct{}{}
		patterns = append(patterns, r.pattern)
	}
	return patterns
}

// SubscriptionPrefixes returns the ZeroMQ SUB/XSUB byte-prefix filters
// for source: the literal prefix of each pattern in Subscriptions,
// deduplicated.
func (idx *Index) SubscriptionPrefixes(source model.EndpointRef) []string {
	patterns := idx.Subscriptions(source)
	if patterns == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(patterns))
	var prefixes []string
	for _, p := range patterns {
		prefix := topic.LiteralPrefix(p)
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}
	return prefixes
}
