package netloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/dongle"
	"github.com/ifroglab/lora-gateway-bridge/pkg/state"
)

// fakePort is a minimal dongle.Port scripted with canned ACK frames, one
// per command sent; it never blocks waiting for data.
type fakePort struct {
	mu      sync.Mutex
	replies [][]byte
}

func (f *fakePort) WriteAll(b []byte) error { return nil }

func (f *fakePort) ReadInto(buf []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return 0, nil
	}
	chunk := f.replies[0]
	f.replies = f.replies[1:]
	return copy(buf, chunk), nil
}

func crc(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

func okAck() []byte {
	ack := []byte{0x01, 0x03, 0x01, 0x55}
	return append(ack, crc(ack))
}

func counterAck(v uint16) []byte {
	ack := []byte{0x01, 0x07, 0x02, byte(v >> 8), byte(v)}
	return append(ack, crc(ack))
}

func readDataAck(payload []byte, rssi int16) []byte {
	p := append(append([]byte{}, payload...), byte(rssi>>8), byte(rssi))
	ack := []byte{0x01, 0x06, byte(len(p))}
	ack = append(ack, p...)
	return append(ack, crc(ack))
}

// fakePublisher records every send and lets tests force failures.
type fakePublisher struct {
	mu      sync.Mutex
	ulData  []broker.UlData
	results []broker.DlDataResult
}

func (f *fakePublisher) SendULData(msg broker.UlData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ulData = append(f.ulData, msg)
	return nil
}

func (f *fakePublisher) SendDLDataResult(r broker.DlDataResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, r)
	return nil
}

func newTestLoop(t *testing.T, port *fakePort, st *state.State, pub *fakePublisher) *Loop {
	t.Helper()
	connect := func() (*dongle.Protocol, func() error, error) {
		proto := dongle.NewProtocol(port, nil)
		return proto, func() error { return nil }, nil
	}
	cfg := Config{Freq: 91500, Power: 0, PollInterval: time.Millisecond, ConnectRetry: time.Millisecond}
	return New(cfg, connect, st, pub, nil)
}

// TestOversizeDownlinkRejectedWithoutTX feeds a single uplink followed by
// an oversized pending downlink (S4), and asserts the loop reports a
// rejection result without ever writing a TX command.
func TestOversizeDownlinkRejectedWithoutTX(t *testing.T) {
	nodeID := uint32(0x2a)
	frame := append([]byte{0, 0, 0, byte(nodeID), 0, 0, 0, 0}, []byte{0xDE, 0xAD}...)

	port := &fakePort{replies: [][]byte{
		okAck(),               // connect: set_values(rx)
		counterAck(1),          // connect: read_counter
		counterAck(2),          // tick: read_counter (changed)
		readDataAck(frame, -10), // tick: read_data
	}}

	st := state.New()
	// 9 bytes of hex (18 chars) exceeds the 16-hex-char limit.
	st.Pending.PushBack("0000002a", broker.DlData{DataID: "d1", Data: "deadbeefdeadbeefaa"})

	pub := &fakePublisher{}
	loop := newTestLoop(t, port, st, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.ulData) == 0 {
		t.Fatal("expected at least one uplink forwarded")
	}
	if len(pub.results) != 1 {
		t.Fatalf("expected exactly one dl_data_result, got %d", len(pub.results))
	}
	if pub.results[0].Status != 1 {
		t.Errorf("status = %d, want 1 (rejected)", pub.results[0].Status)
	}
	if st.Downlinks.Len() != 0 {
		t.Errorf("downlink history len = %d, want 0 (no TX attempted)", st.Downlinks.Len())
	}
}

// TestUplinkThenQueuedDownlinkTransmits exercises the normal path: an
// uplink arrives, a same-size-or-smaller pending downlink is drained and
// transmitted, and the radio is left back in RX.
func TestUplinkThenQueuedDownlinkTransmits(t *testing.T) {
	nodeID := uint32(0x2a)
	frame := append([]byte{0, 0, 0, byte(nodeID), 0, 0, 0, 0}, []byte{0xDE, 0xAD}...)

	port := &fakePort{replies: [][]byte{
		okAck(),                 // connect: set_values(rx)
		counterAck(1),            // connect: read_counter
		counterAck(2),            // tick: read_counter (changed)
		readDataAck(frame, -10),  // tick: read_data
		okAck(),                 // tick: set_values(tx)
		okAck(),                 // tick: write_data
		okAck(),                 // tick: set_values(rx) restore
	}}

	st := state.New()
	st.Pending.PushBack("0000002a", broker.DlData{DataID: "d1", Data: "cafe"})

	pub := &fakePublisher{}
	loop := newTestLoop(t, port, st, pub)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if st.Downlinks.Len() != 1 {
		t.Fatalf("downlink history len = %d, want 1", st.Downlinks.Len())
	}
	sent := st.Downlinks.Snapshot()[0]
	if sent.SentAt.IsZero() {
		t.Error("expected SentAt to be stamped")
	}
}
