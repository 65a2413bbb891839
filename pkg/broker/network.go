package broker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Redis channel/list names the two managers agree on. These stand in for
// whatever wire protocol mq_uri's broker actually speaks; the bridge only
// needs the contract below.
const (
	chanUplink   = "lora:uplink"
	chanDLResult = "lora:dl:result"
	chanDLResp   = "lora:dl:resp"
	listDLQueue  = "lora:dl:queue"

	brpopTimeout = 1 * time.Second
)

// NetworkMgr is the network bridge's broker handle: it dispatches
// downlinks pushed by an ApplicationMgr (or an external broker) to
// Handler.OnDLData, and exposes send_uldata / send_dldata_result.
type NetworkMgr struct {
	client  *Client
	handler Handler
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// NewNetworkMgr constructs a NetworkMgr over client and starts its
// downlink-queue watcher goroutine.
func NewNetworkMgr(client *Client, handler Handler, log *logrus.Entry) *NetworkMgr {
	if log == nil {
		log = logrus.WithField("component", "broker.network")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &NetworkMgr{client: client, handler: handler, log: log, ctx: ctx, cancel: cancel}
	go m.watchDownlinks()
	return m
}

// Close stops the downlink watcher. It does not close the underlying
// Client, which may be shared.
func (m *NetworkMgr) Close() {
	m.cancel()
}

func (m *NetworkMgr) watchDownlinks() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}
		msg, ok, err := brpop[DlData](m.client, listDLQueue, brpopTimeout)
		if err != nil {
			m.log.WithError(err).Warn("downlink queue watch failed")
			continue
		}
		if !ok {
			continue
		}
		if err := m.handler.OnDLData(msg); err != nil {
			m.log.WithError(err).Warn("on_dldata handler failed")
		}
	}
}

// SendULData publishes an uplink record to the broker.
func (m *NetworkMgr) SendULData(msg UlData) error {
	return m.client.publish(chanUplink, msg)
}

// SendDLDataResult publishes the immediate queued/accepted (or rejected)
// acknowledgment for a downlink.
func (m *NetworkMgr) SendDLDataResult(result DlDataResult) error {
	return m.client.publish(chanDLResult, result)
}
