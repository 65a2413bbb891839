// Package state holds the process-lifetime shared state the network
// bridge's event loop, broker callbacks, and HTTP surface all touch:
// the uplink/downlink history buffers and the per-address pending
// downlink queues.
package state

import (
	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/history"
	"github.com/ifroglab/lora-gateway-bridge/pkg/queue"
)

// State is the shared container. Each field already guards itself with
// its own mutex, so State itself needs no additional locking.
type State struct {
	Uplinks   *history.Buffer[broker.UlData]
	Downlinks *history.Buffer[broker.DlData]
	Pending   *queue.Pending[broker.DlData]
}

// New returns a freshly initialized State.
func New() *State {
	return &State{
		Uplinks:   &history.Buffer[broker.UlData]{},
		Downlinks: &history.Buffer[broker.DlData]{},
		Pending:   queue.New[broker.DlData](),
	}
}
