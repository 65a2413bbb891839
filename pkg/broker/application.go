package broker

import (
	"github.com/sirupsen/logrus"
)

// ApplicationMgr is the application-side broker handle: it receives
// uplinks and downlink responses/results, and sends new downlinks into
// the queue a NetworkMgr drains.
type ApplicationMgr struct {
	client  *Client
	handler Handler
	log     *logrus.Entry

	stopUplink, stopResp, stopResult func()
}

// NewApplicationMgr constructs an ApplicationMgr over client and
// subscribes it to the uplink, dl-resp, and dl-result channels.
func NewApplicationMgr(client *Client, handler Handler, log *logrus.Entry) *ApplicationMgr {
	if log == nil {
		log = logrus.WithField("component", "broker.application")
	}
	m := &ApplicationMgr{client: client, handler: handler, log: log}

	uplinks, stopUplink := subscribe[UlData](client, chanUplink)
	m.stopUplink = stopUplink
	go func() {
		for msg := range uplinks {
			if err := handler.OnULData(msg); err != nil {
				log.WithError(err).Warn("on_uldata handler failed")
			}
		}
	}()

	resps, stopResp := subscribe[DlDataResp](client, chanDLResp)
	m.stopResp = stopResp
	go func() {
		for msg := range resps {
			if err := handler.OnDLDataResp(msg); err != nil {
				log.WithError(err).Warn("on_dldata_resp handler failed")
			}
		}
	}()

	results, stopResult := subscribe[DlDataResult](client, chanDLResult)
	m.stopResult = stopResult
	go func() {
		for msg := range results {
			if err := handler.OnDLDataResult(msg); err != nil {
				log.WithError(err).Warn("on_dldata_result handler failed")
			}
		}
	}()

	return m
}

// Close stops all three subscriptions.
func (m *ApplicationMgr) Close() {
	m.stopUplink()
	m.stopResp()
	m.stopResult()
}

// SendDLData queues a new downlink for the network bridge to drain.
func (m *ApplicationMgr) SendDLData(msg DlData) error {
	return m.client.lpush(listDLQueue, msg)
}
