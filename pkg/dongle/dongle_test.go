package dongle

import (
	"bytes"
	"testing"
	"time"
)

// fakePort is a scriptable Port: each WriteAll call records the frame sent,
// and each ReadInto call serves the next queued chunk (possibly split
// across multiple calls, to exercise the ACK reader's partial-read path).
type fakePort struct {
	writes [][]byte
	chunks [][]byte
}

func (f *fakePort) WriteAll(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.writes = append(f.writes, cp)
	return nil
}

func (f *fakePort) ReadInto(buf []byte) (int, error) {
	if len(f.chunks) == 0 {
		return 0, nil
	}
	chunk := f.chunks[0]
	f.chunks = f.chunks[1:]
	n := copy(buf, chunk)
	return n, nil
}

func TestCRC8Involution(t *testing.T) {
	data := []byte{0xC1, 0x03, 0x05, 3, 0x01, 0x65, 0xDC, 0, 0}
	c := crc8(data)
	full := append(append([]byte{}, data...), c)
	if crc8(full) != 0 {
		t.Fatalf("crc XOR is not an involution: crc(data++crc(data)) = %02x, want 0", crc8(full))
	}
}

func TestSetValuesFrameCRC(t *testing.T) {
	// S1: verify the wire frame for set_values(mode=3, freq=91500, power=0).
	port := &fakePort{chunks: [][]byte{{0x01, 0x03, 0x01, 0x55, 0}}}
	p := NewProtocol(port, nil)
	// Prime expected CRC on a matching ACK so the call succeeds.
	ack := []byte{0x01, 0x03, 0x01, 0x55}
	ack = append(ack, crc8(ack))
	port.chunks = [][]byte{ack}

	if err := p.SetValues(3, 91500, 0); err != nil {
		t.Fatalf("SetValues: %v", err)
	}
	if len(port.writes) != 1 {
		t.Fatalf("expected exactly one write, got %d", len(port.writes))
	}
	frame := port.writes[0]
	wantPayload := []byte{3, byte(91500 >> 16), byte(91500 >> 8), byte(91500), 0}
	wantFrame := append([]byte{cmdHeaderByte, cmdSetValues, byte(len(wantPayload))}, wantPayload...)
	wantFrame = append(wantFrame, crc8(wantFrame))
	if !bytes.Equal(frame, wantFrame) {
		t.Fatalf("set_values frame = % x, want % x", frame, wantFrame)
	}
}

func TestSetValuesClamp(t *testing.T) {
	// S5: set_values(mode=7, freq=50000, power=99) clamps to (1, 91500, 0).
	port := &fakePort{}
	p := NewProtocol(port, nil)
	ack := []byte{0x01, 0x03, 0x01, 0x55}
	ack = append(ack, crc8(ack))
	port.chunks = [][]byte{ack}

	if err := p.SetValues(7, 50000, 99); err != nil {
		t.Fatalf("SetValues: %v", err)
	}
	frame := port.writes[0]
	payload := frame[3 : 3+frame[2]]
	if payload[0] != 1 {
		t.Errorf("mode = %d, want 1", payload[0])
	}
	freq := uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
	if freq != 91500 {
		t.Errorf("freq = %d, want 91500", freq)
	}
	if payload[4] != 0 {
		t.Errorf("power = %d, want 0", payload[4])
	}
}

func TestReadAckSplitRead(t *testing.T) {
	// S6: the first chunk delivers only 2 bytes; the ACK reader must
	// succeed once the remainder arrives on the follow-up read.
	ack := []byte{0x01, 0x07, 0x02, 0x00, 0x05}
	ack = append(ack, crc8(ack))
	port := &fakePort{chunks: [][]byte{ack[:2], ack[2:]}}
	p := NewProtocol(port, nil)

	n, err := p.ReadCounter()
	if err != nil {
		t.Fatalf("ReadCounter: %v", err)
	}
	if n != 5 {
		t.Fatalf("counter = %d, want 5", n)
	}
}

func TestReadCounterParity(t *testing.T) {
	// S2: counter 0x0005, 0x0005, 0x0006 in sequence.
	port := &fakePort{}
	p := NewProtocol(port, nil)

	values := []uint16{5, 5, 6}
	for _, v := range values {
		ack := []byte{0x01, 0x07, 0x02, byte(v >> 8), byte(v)}
		ack = append(ack, crc8(ack))
		port.chunks = [][]byte{ack}
		got, err := p.ReadCounter()
		if err != nil {
			t.Fatalf("ReadCounter: %v", err)
		}
		if got != v {
			t.Fatalf("counter = %d, want %d", got, v)
		}
	}
}

func TestReadDataRSSI(t *testing.T) {
	// S3-adjacent: a 6-byte ACK payload with trailing RSSI -16 (0xFFF0).
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xFF, 0xF0}
	ack := []byte{0x01, 0x06, byte(len(payload))}
	ack = append(ack, payload...)
	ack = append(ack, crc8(ack))
	port := &fakePort{chunks: [][]byte{ack}}
	p := NewProtocol(port, nil)

	rd, err := p.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if rd == nil {
		t.Fatal("ReadData returned nil, want a frame")
	}
	if !bytes.Equal(rd.Data, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("data = % x, want deadbeef", rd.Data)
	}
	if rd.RSSI != -16 {
		t.Errorf("rssi = %d, want -16", rd.RSSI)
	}
}

func TestReadDataEmptyIsNoFrame(t *testing.T) {
	ack := []byte{0x01, 0x06, 0x00}
	ack = append(ack, crc8(ack))
	port := &fakePort{chunks: [][]byte{ack}}
	p := NewProtocol(port, nil)

	rd, err := p.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	if rd != nil {
		t.Fatalf("ReadData = %+v, want nil (no frame available)", rd)
	}
}

// TestAckCRCMismatchRetriesThenSucceeds matches original_source's
// not_timeout(start, e)?: a CRC mismatch on read_ack is retried exactly
// like a transport timeout, not surfaced immediately. Two bad-CRC acks
// are served before a good one; the command must succeed once the good
// ack arrives, proving the retry loop doesn't stop short on InvalidData.
func TestAckCRCMismatchRetriesThenSucceeds(t *testing.T) {
	bad := []byte{0x01, 0x07, 0x02, 0x00, 0x05, 0xFF} // bad crc
	good := []byte{0x01, 0x07, 0x02, 0x00, 0x06}
	good = append(good, crc8(good))
	port := &fakePort{chunks: [][]byte{bad, bad, good}}
	p := NewProtocol(port, nil)

	got, err := p.ReadCounter()
	if err != nil {
		t.Fatalf("ReadCounter: %v", err)
	}
	if got != 6 {
		t.Fatalf("counter = %d, want 6", got)
	}
	if len(port.writes) != 3 {
		t.Fatalf("expected 3 command writes (2 retries + success), got %d", len(port.writes))
	}
}

// TestAckCRCMismatchSurfacedAfterBudget confirms that once the 1s retry
// budget is exhausted, the last read_ack error (InvalidData, here) is
// still returned to the caller.
func TestAckCRCMismatchSurfacedAfterBudget(t *testing.T) {
	bad := []byte{0x01, 0x07, 0x02, 0x00, 0x05, 0xFF} // bad crc
	chunks := make([][]byte, 0, 60)
	for i := 0; i < 60; i++ {
		chunks = append(chunks, bad)
	}
	port := &fakePort{chunks: chunks}
	p := NewProtocol(port, nil)

	start := time.Now()
	_, err := p.ReadCounter()
	if err != ErrInvalidData {
		t.Fatalf("ReadCounter err = %v, want ErrInvalidData", err)
	}
	if time.Since(start) < cmdRetryTime {
		t.Fatalf("expected ReadCounter to retry for the full %v budget before surfacing, took %v", cmdRetryTime, time.Since(start))
	}
}

// TestDongleErrorReplyRetriesThenSucceeds matches the same uniform-retry
// rule for a device-level error reply (ack cmd byte 0xFF): it is retried,
// not surfaced on the first occurrence.
func TestDongleErrorReplyRetriesThenSucceeds(t *testing.T) {
	errAck := []byte{0x01, 0xFF, 0x01, 0x2A}
	errAck = append(errAck, crc8(errAck))
	good := []byte{0x01, 0x07, 0x02, 0x00, 0x07}
	good = append(good, crc8(good))
	port := &fakePort{chunks: [][]byte{errAck, good}}
	p := NewProtocol(port, nil)

	got, err := p.ReadCounter()
	if err != nil {
		t.Fatalf("ReadCounter: %v", err)
	}
	if got != 7 {
		t.Fatalf("counter = %d, want 7", got)
	}
}

// TestChipInfo pins the ack field order (chip_id first, fw_ver second)
// and the node_id-valid gate (fw_ver byte value >= 8, not a length
// check), per original_source's cmd00_chip_info.
func TestChipInfo(t *testing.T) {
	// chip_id=0x03, fw_ver=0x09 (>=8, so node_id is valid), node_id=0x0000002a.
	payload := []byte{0x03, 0x09, 0x00, 0x00, 0x00, 0x2a}
	ack := []byte{0x01, 0x00, byte(len(payload))}
	ack = append(ack, payload...)
	ack = append(ack, crc8(ack))
	port := &fakePort{chunks: [][]byte{ack}}
	p := NewProtocol(port, nil)

	info, err := p.ChipInfo()
	if err != nil {
		t.Fatalf("ChipInfo: %v", err)
	}
	if info.ChipID != 0x03 {
		t.Errorf("ChipID = %#x, want 0x03", info.ChipID)
	}
	if info.FWVer != 0x09 {
		t.Errorf("FWVer = %#x, want 0x09", info.FWVer)
	}
	if !info.NodeIDValid {
		t.Fatal("NodeIDValid = false, want true")
	}
	if info.NodeID != 0x2a {
		t.Errorf("NodeID = %#x, want 0x2a", info.NodeID)
	}
	if len(port.writes) != 1 || !bytes.Equal(port.writes[0], chipInfoFrame) {
		t.Errorf("expected the literal chip_info frame to be written, got % x", port.writes)
	}
}

// TestChipInfoNodeIDInvalidWhenFWVerLow confirms the node_id-valid gate
// is the fw_ver byte's *value*, not the payload length: a 6-byte payload
// with fw_ver < 8 still yields NodeIDValid == false.
func TestChipInfoNodeIDInvalidWhenFWVerLow(t *testing.T) {
	payload := []byte{0x03, 0x05, 0x00, 0x00, 0x00, 0x2a}
	ack := []byte{0x01, 0x00, byte(len(payload))}
	ack = append(ack, payload...)
	ack = append(ack, crc8(ack))
	port := &fakePort{chunks: [][]byte{ack}}
	p := NewProtocol(port, nil)

	info, err := p.ChipInfo()
	if err != nil {
		t.Fatalf("ChipInfo: %v", err)
	}
	if info.NodeIDValid {
		t.Fatal("NodeIDValid = true, want false (fw_ver byte value < 8)")
	}
}
