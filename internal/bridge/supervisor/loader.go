package supervisor

import (
	"context"
	"fmt"

	"github.com/zhxiaoyu/zeromqtt/internal/bridgestore"
)

// LoadSnapshot reads the enabled endpoint and mapping sets from store and
// bundles them into a Snapshot, the shape Start/ApplyConfig expect. It is
// the bridge between the (out-of-scope) REST-managed ConfigStore and the
// Supervisor's own configuration model.
func LoadSnapshot(ctx context.Context, store bridgestore.ConfigStore) (Snapshot, error) {
	mqttEps, err := store.MQTTEndpoints().ListEnabled(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading mqtt endpoints: %w", err)
	}

	zmqEps, err := store.ZMQEndpoints().ListEnabled(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading zmq endpoints: %w", err)
	}

	mappings, err := store.Mappings().ListEnabled(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading mappings: %w", err)
	}

	return Snapshot{
		MQTTEndpoints: mqttEps,
		ZMQEndpoints:  zmqEps,
		Mappings:      mappings,
	}, nil
}
