// Package broker implements the inbound callback surface and outbound
// send_* operations the spec describes as an opaque NetworkMgr /
// ApplicationMgr broker SDK, concretely backed by Redis Pub/Sub and
// lists (see Client).
package broker

import "time"

// UlData is an uplink record: a frame received from a node, on its way
// to the broker.
type UlData struct {
	Time        time.Time `cbor:"time"`
	NetworkAddr string    `cbor:"network_addr"`
	Data        string    `cbor:"data"` // hex-encoded payload
	Extension   UlDataExt `cbor:"extension"`
}

// UlDataExt carries the optional extension fields uplinks travel with.
type UlDataExt struct {
	RSSI int16 `cbor:"rssi"`
}

// DlData is a downlink record: a frame queued by the broker for
// transmission to a node, and its lifecycle timestamps.
type DlData struct {
	DataID      string    `cbor:"data_id"`
	CreatedAt   time.Time `cbor:"created_at"`
	PublishedAt time.Time `cbor:"published_at"`
	SentAt      time.Time `cbor:"sent_at"` // zero until TX succeeds
	NetworkAddr string    `cbor:"network_addr"`
	Data        string    `cbor:"data"` // hex-encoded payload, <=32 hex chars

	// CorrelationID binds this send to a later on_dldata_resp / result.
	CorrelationID string `cbor:"correlation_id"`
	Status        int    `cbor:"status"`
	Error         string `cbor:"error"`
	Message       string `cbor:"message"`
}

// DlDataResult is the immediate "queued/accepted" (or rejection)
// acknowledgment sent back for a freshly received downlink.
type DlDataResult struct {
	DataID  string `cbor:"data_id"`
	Status  int    `cbor:"status"`
	Message string `cbor:"message"`
}

// DlDataResp carries an application-level response to a previously sent
// downlink, correlated by CorrelationID.
type DlDataResp struct {
	CorrelationID string `cbor:"correlation_id"`
	DataID        string `cbor:"data_id"`
	Error         string `cbor:"error"`
	Message       string `cbor:"message"`
}

// Handler is the capability set a bridge registers with its manager:
// on_status_change, on_uldata, on_dldata, on_dldata_resp,
// on_dldata_result. Implementations that don't care about an event
// embed NoopHandler.
type Handler interface {
	OnStatusChange(status string)
	OnULData(msg UlData) error
	OnDLData(msg DlData) error
	OnDLDataResp(msg DlDataResp) error
	OnDLDataResult(msg DlDataResult) error
}

// NoopHandler implements Handler with no-ops; embed it and override only
// the callbacks a given bridge role cares about.
type NoopHandler struct{}

func (NoopHandler) OnStatusChange(string) {}
func (NoopHandler) OnULData(UlData) error { return nil }
func (NoopHandler) OnDLData(DlData) error { return nil }
func (NoopHandler) OnDLDataResp(DlDataResp) error { return nil }
func (NoopHandler) OnDLDataResult(DlDataResult) error { return nil }
