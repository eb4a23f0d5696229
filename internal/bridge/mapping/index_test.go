package mapping

import (
	"errors"
	"testing"

	"github.com/zhxiaoyu/zeromqtt/internal/bridge/bridgeerr"
	"github.com/zhxiaoyu/zeromqtt/internal/bridge/model"
)

var (
	mqtt1 = model.EndpointRef{Kind: model.KindMQTT, ID: 1}
	zmq2  = model.EndpointRef{Kind: model.KindZMQ, ID: 2}
	zmq3  = model.EndpointRef{Kind: model.KindZMQ, ID: 3}
)

func endpoints() map[model.EndpointRef]model.EndpointKind {
	return map[model.EndpointRef]model.EndpointKind{
		mqtt1: model.KindMQTT,
		zmq2:  model.KindZMQ,
		zmq3:  model.KindZMQ,
	}
}

func TestBuild_RejectsUnknownSourceEndpoint(t *testing.T) {
	m := model.Mapping{
		ID:          1,
		Source:      model.EndpointRef{Kind: model.KindMQTT, ID: 99},
		Target:      zmq2,
		SourceTopic: "a/+/b",
		TargetTopic: "x/{1}/y",
		Direction:   model.DirMQTTToZMQ,
		Enabled:     true,
	}
	_, err := Build([]model.Mapping{m}, endpoints())
	if !errors.Is(err, bridgeerr.ConfigInvalid) {
		t.Fatalf("err = %v, want ConfigInvalid", err)
	}
}

func TestBuild_RejectsMalformedPattern(t *testing.T) {
	m := model.Mapping{
		ID: 1, Source: mqtt1, Target: zmq2,
		SourceTopic: "a/#/b", TargetTopic: "x",
		Direction: model.DirMQTTToZMQ, Enabled: true,
	}
	_, err := Build([]model.Mapping{m}, endpoints())
	if !errors.Is(err, bridgeerr.ConfigInvalid) {
		t.Fatalf("err = %v, want ConfigInvalid", err)
	}
}

func TestBuild_RejectsOutOfRangeTemplate(t *testing.T) {
	m := model.Mapping{
		ID: 1, Source: mqtt1, Target: zmq2,
		SourceTopic: "a/+/b", TargetTopic: "x/{2}",
		Direction: model.DirMQTTToZMQ, Enabled: true,
	}
	_, err := Build([]model.Mapping{m}, endpoints())
	if !errors.Is(err, bridgeerr.ConfigInvalid) {
		t.Fatalf("err = %v, want ConfigInvalid", err)
	}
}

func TestBuild_SkipsDisabledMappings(t *testing.T) {
	m := model.Mapping{
		ID: 1, Source: mqtt1, Target: zmq2,
		SourceTopic: "sensors/+/t", TargetTopic: "zmq.s.{1}.t",
		Direction: model.DirMQTTToZMQ, Enabled: false,
	}
	idx, err := Build([]model.Mapping{m}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	actions, err := idx.Lookup(mqtt1, "sensors/room1/t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 0 {
		t.Errorf("expected no actions for disabled mapping, got %v", actions)
	}
}

func TestLookup_Scenario1_MQTTToZMQFanOut(t *testing.T) {
	m := model.Mapping{
		ID: 1, Source: mqtt1, Target: zmq2,
		SourceTopic: "sensors/+/t", TargetTopic: "zmq.s.{1}.t",
		Direction: model.DirMQTTToZMQ, Enabled: true,
	}
	idx, err := Build([]model.Mapping{m}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions, err := idx.Lookup(mqtt1, "sensors/room1/t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Target != zmq2 || actions[0].Topic != "zmq.s.room1.t" {
		t.Errorf("action = %+v, want target=%v topic=zmq.s.room1.t", actions[0], zmq2)
	}
}

func TestLookup_Scenario2_ZMQToMQTTWithHash(t *testing.T) {
	m := model.Mapping{
		ID: 1, Source: zmq3, Target: mqtt1,
		SourceTopic: "zmq/#", TargetTopic: "bridged/{*}",
		Direction: model.DirZMQToMQTT, Enabled: true,
	}
	idx, err := Build([]model.Mapping{m}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions, err := idx.Lookup(zmq3, "zmq/a/b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 || actions[0].Topic != "bridged/a/b" {
		t.Fatalf("actions = %v, want single action with topic bridged/a/b", actions)
	}
}

func TestLookup_Scenario3_Bidirectional(t *testing.T) {
	m := model.Mapping{
		ID: 1, Source: mqtt1, Target: zmq2,
		SourceTopic: "x/y", TargetTopic: "y/x",
		Direction: model.DirBidirectional, Enabled: true,
	}
	idx, err := Build([]model.Mapping{m}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	forward, err := idx.Lookup(mqtt1, "x/y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(forward) != 1 || forward[0].Topic != "y/x" || forward[0].Target != zmq2 {
		t.Fatalf("forward = %v, want single action topic=y/x target=%v", forward, zmq2)
	}

	backward, err := idx.Lookup(zmq2, "y/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backward) != 1 || backward[0].Topic != "x/y" || backward[0].Target != mqtt1 {
		t.Fatalf("backward = %v, want single action topic=x/y target=%v", backward, mqtt1)
	}

	// No loop-back: the reverse rule only fires on the target side.
	viaForwardTopic, err := idx.Lookup(mqtt1, "y/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(viaForwardTopic) != 0 {
		t.Errorf("expected no match for y/x on mqtt1 (wrong source), got %v", viaForwardTopic)
	}
}

func TestLookup_Determinism_IndependentOfInsertionOrder(t *testing.T) {
	a := model.Mapping{ID: 2, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "p/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	b := model.Mapping{ID: 1, Source: mqtt1, Target: zmq3, SourceTopic: "a/+", TargetTopic: "q/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}

	idx1, err := Build([]model.Mapping{a, b}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx2, err := Build([]model.Mapping{b, a}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions1, _ := idx1.Lookup(mqtt1, "a/x")
	actions2, _ := idx2.Lookup(mqtt1, "a/x")

	if len(actions1) != 2 || len(actions2) != 2 {
		t.Fatalf("expected 2 actions each, got %d and %d", len(actions1), len(actions2))
	}
	for i := range actions1 {
		if actions1[i] != actions2[i] {
			t.Errorf("action %d differs by insertion order: %+v vs %+v", i, actions1[i], actions2[i])
		}
	}
	// mapping id 1 (q/{1}) must sort before mapping id 2 (p/{1}).
	if actions1[0].MappingID != 1 {
		t.Errorf("expected mapping id 1 first, got %d", actions1[0].MappingID)
	}
}

func TestLookup_DedupByTargetAndTopic(t *testing.T) {
	a := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "p/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	b := model.Mapping{ID: 2, Source: mqtt1, Target: zmq2, SourceTopic: "a/#", TargetTopic: "p/{*}", Direction: model.DirMQTTToZMQ, Enabled: true}

	idx, err := Build([]model.Mapping{a, b}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actions, err := idx.Lookup(mqtt1, "a/x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected dedup to 1 action, got %d: %v", len(actions), actions)
	}
	if actions[0].MappingID != 1 {
		t.Errorf("expected first (lowest id) mapping to win dedup, got mapping id %d", actions[0].MappingID)
	}
}

func TestSubscriptions_UnionOfPatterns(t *testing.T) {
	a := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "p/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	b := model.Mapping{ID: 2, Source: mqtt1, Target: zmq3, SourceTopic: "b/#", TargetTopic: "q/{*}", Direction: model.DirMQTTToZMQ, Enabled: true}

	idx, err := Build([]model.Mapping{a, b}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	subs := idx.Subscriptions(mqtt1)
	if len(subs) != 2 {
		t.Fatalf("expected 2 subscriptions, got %v", subs)
	}
}

func TestSubscriptionPrefixes_DerivedFromLiteralPrefix(t *testing.T) {
	a := model.Mapping{ID: 1, Source: zmq3, Target: mqtt1, SourceTopic: "zmq/s/+/t", TargetTopic: "bridged/{1}", Direction: model.DirZMQToMQTT, Enabled: true}

	idx, err := Build([]model.Mapping{a}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prefixes := idx.SubscriptionPrefixes(zmq3)
	if len(prefixes) != 1 || prefixes[0] != "zmq/s" {
		t.Errorf("prefixes = %v, want [zmq/s]", prefixes)
	}
}

func TestHotReload_AddingMappingDoesNotDropExisting(t *testing.T) {
	original := model.Mapping{ID: 1, Source: mqtt1, Target: zmq2, SourceTopic: "a/+", TargetTopic: "p/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}

	idxBefore, err := Build([]model.Mapping{original}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	beforeActions, _ := idxBefore.Lookup(mqtt1, "a/x")

	added := model.Mapping{ID: 2, Source: mqtt1, Target: zmq3, SourceTopic: "b/+", TargetTopic: "q/{1}", Direction: model.DirMQTTToZMQ, Enabled: true}
	idxAfter, err := Build([]model.Mapping{original, added}, endpoints())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	afterActions, _ := idxAfter.Lookup(mqtt1, "a/x")

	if len(beforeActions) != len(afterActions) {
		t.Fatalf("expected pre-existing mapping's actions to survive reload: before=%v after=%v", beforeActions, afterActions)
	}
	if beforeActions[0] != afterActions[0] {
		t.Errorf("pre-existing action changed after reload: %+v vs %+v", beforeActions[0], afterActions[0])
	}
}
