package broker

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ifroglab/lora-gateway-bridge/pkg/history"
	"github.com/ifroglab/lora-gateway-bridge/pkg/queue"
)

// ResultSender is the outbound surface NetworkHandler needs to
// immediately acknowledge a freshly queued downlink. *NetworkMgr
// satisfies it.
type ResultSender interface {
	SendDLDataResult(DlDataResult) error
}

// NetworkHandler implements Handler for the network bridge role
// described in spec.md §4.6: on_dldata stamps a creation time, appends
// the record to Pending under its network address, and immediately
// sends a status=-1 "queued/accepted" result, logging (never failing)
// if that send errors. Every other callback is a no-op for this role.
//
// Sender is assigned after construction, since the NetworkMgr it
// normally points at is itself constructed with this handler.
type NetworkHandler struct {
	NoopHandler
	Pending *queue.Pending[DlData]
	Sender  ResultSender
	Log     *logrus.Entry
}

// NewNetworkHandler builds a NetworkHandler over pending. sender may be
// nil at construction time and assigned afterward.
func NewNetworkHandler(pending *queue.Pending[DlData], sender ResultSender, log *logrus.Entry) *NetworkHandler {
	if log == nil {
		log = logrus.WithField("component", "broker.network_handler")
	}
	return &NetworkHandler{Pending: pending, Sender: sender, Log: log}
}

// OnDLData implements spec.md §4.6's on_dldata: build the record, queue
// it, and immediately acknowledge.
func (h *NetworkHandler) OnDLData(msg DlData) error {
	msg.CreatedAt = time.Now().UTC()
	msg.SentAt = time.Time{}
	msg.Data = strings.ToLower(msg.Data)
	h.Pending.PushBack(msg.NetworkAddr, msg)

	result := DlDataResult{DataID: msg.DataID, Status: -1}
	if h.Sender != nil {
		if err := h.Sender.SendDLDataResult(result); err != nil {
			h.Log.WithError(err).Warn("send_dldata_result failed for newly queued downlink")
		}
	}
	return nil
}

// ApplicationHandler implements Handler for the application-bridge
// role described in spec.md §4.6: on_uldata records uplinks, and
// on_dldata_resp/on_dldata_result patch a previously recorded downlink
// in place by correlation_id / data_id respectively. A missing match is
// a warning, not an error, in both cases.
type ApplicationHandler struct {
	NoopHandler
	Uplinks   *history.Buffer[UlData]
	Downlinks *history.Buffer[DlData]
	Log       *logrus.Entry
}

// NewApplicationHandler builds an ApplicationHandler over the given
// history buffers.
func NewApplicationHandler(uplinks *history.Buffer[UlData], downlinks *history.Buffer[DlData], log *logrus.Entry) *ApplicationHandler {
	if log == nil {
		log = logrus.WithField("component", "broker.application_handler")
	}
	return &ApplicationHandler{Uplinks: uplinks, Downlinks: downlinks, Log: log}
}

// OnULData pushes msg into the uplink history. It always succeeds.
func (h *ApplicationHandler) OnULData(msg UlData) error {
	h.Uplinks.Add(msg)
	return nil
}

// OnDLDataResp scans downlink history for the matching correlation_id
// and copies data_id/error/message in place.
func (h *ApplicationHandler) OnDLDataResp(msg DlDataResp) error {
	found := h.Downlinks.Update(
		func(d DlData) bool { return d.CorrelationID == msg.CorrelationID },
		func(d *DlData) {
			d.DataID = msg.DataID
			d.Error = msg.Error
			d.Message = msg.Message
		},
	)
	if !found {
		h.Log.WithField("correlation_id", msg.CorrelationID).Warn("on_dldata_resp: no matching downlink in history")
	}
	return nil
}

// OnDLDataResult scans downlink history for the matching data_id and
// copies status/message in place.
func (h *ApplicationHandler) OnDLDataResult(msg DlDataResult) error {
	found := h.Downlinks.Update(
		func(d DlData) bool { return d.DataID == msg.DataID },
		func(d *DlData) {
			d.Status = msg.Status
			d.Message = msg.Message
		},
	)
	if !found {
		h.Log.WithField("data_id", msg.DataID).Warn("on_dldata_result: no matching downlink in history")
	}
	return nil
}
