package broker

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestUlDataCBORRoundTrip(t *testing.T) {
	want := UlData{
		Time:        time.Now().UTC().Truncate(time.Second),
		NetworkAddr: "0000002a",
		Data:        "dead",
		Extension:   UlDataExt{RSSI: -16},
	}
	data, err := cbor.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got UlData
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.NetworkAddr != want.NetworkAddr || got.Data != want.Data || got.Extension.RSSI != want.Extension.RSSI {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDlDataCBORRoundTrip(t *testing.T) {
	want := DlData{
		DataID:      "abc123",
		NetworkAddr: "0000002a",
		Data:        "deadbeef",
		Status:      1,
		Message:     "exceed 16-byte hexadecimal",
	}
	data, err := cbor.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got DlData
	if err := cbor.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNoopHandlerSatisfiesInterface(t *testing.T) {
	var h Handler = NoopHandler{}
	if err := h.OnULData(UlData{}); err != nil {
		t.Fatalf("OnULData: %v", err)
	}
	if err := h.OnDLData(DlData{}); err != nil {
		t.Fatalf("OnDLData: %v", err)
	}
}
