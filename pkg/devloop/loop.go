// Package devloop implements the device bridge's event loop: a
// wall-clock-phase-locked tick that interleaves RX observation with
// periodic I²C sensor sampling and transmission.
package devloop

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/dongle"
	"github.com/ifroglab/lora-gateway-bridge/pkg/frame"
	"github.com/ifroglab/lora-gateway-bridge/pkg/sensors"
	"github.com/ifroglab/lora-gateway-bridge/pkg/state"
)

// txBufLen is the size of the device bridge's own outbound frame, which
// deliberately differs from the network bridge's 16-byte downlink limit:
// it packs node_id plus three sensor readings.
const txBufLen = 15

// Connector opens a fresh dongle connection and reports the local
// node's own ID (from chip_info), used to classify received frames as
// broadcast/self/other.
type Connector func() (proto *dongle.Protocol, closer func() error, ownNodeID uint32, err error)

// Publisher is the broker-side surface the loop needs for its optional
// uplink echo.
type Publisher interface {
	SendULData(broker.UlData) error
}

// Config parameterizes a Loop.
type Config struct {
	Freq    uint32
	Power   byte
	Workers int // sensors.Pool size, default 1
}

// Loop is the device bridge's phase-locked state machine.
type Loop struct {
	cfg     Config
	connect Connector
	bus     *sensors.Bus
	pool    *sensors.Pool
	state   *state.State
	mgr     Publisher
	log     *logrus.Entry
}

// New builds a Loop. bus may be nil in environments with no I²C hardware
// attached (e.g. unit tests exercising only the RX/TX path); sensor
// sampling is skipped in that case.
func New(cfg Config, connect Connector, bus *sensors.Bus, st *state.State, mgr Publisher, log *logrus.Entry) *Loop {
	if log == nil {
		log = logrus.WithField("component", "devloop")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Loop{
		cfg:     cfg,
		connect: connect,
		bus:     bus,
		pool:    sensors.NewPool(cfg.Workers),
		state:   st,
		mgr:     mgr,
		log:     log,
	}
}

// Close stops the sensor worker pool.
func (l *Loop) Close() {
	l.pool.Close()
}

// Run drives the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for ctx.Err() == nil {
		proto, closer, ownID, err := l.connectPhase(ctx)
		if err != nil {
			return
		}
		l.runConnected(ctx, proto, closer, ownID)
	}
}

func (l *Loop) connectPhase(ctx context.Context) (*dongle.Protocol, func() error, uint32, error) {
	for {
		if ctx.Err() != nil {
			return nil, nil, 0, ctx.Err()
		}
		proto, closer, ownID, err := l.connect()
		if err != nil {
			l.log.WithError(err).Warn("connect failed, retrying")
			if !sleepCtx(ctx, 100*time.Millisecond) {
				return nil, nil, 0, ctx.Err()
			}
			continue
		}
		if err := proto.SetValues(dongle.ModeRX, l.cfg.Freq, l.cfg.Power); err != nil {
			l.log.WithError(err).Warn("set_values(rx) failed during connect, retrying")
			closer()
			if !sleepCtx(ctx, 100*time.Millisecond) {
				return nil, nil, 0, ctx.Err()
			}
			continue
		}
		return proto, closer, ownID, nil
	}
}

// runConnected ticks until a phase-1 read/decode error or a cancelled
// context ends it; that failure mode disconnects, unlike the network
// bridge's tolerant read-error policy.
func (l *Loop) runConnected(ctx context.Context, proto *dongle.Protocol, closer func() error, ownID uint32) {
	defer closer()
	var counter uint16
	for {
		if !sleepCtx(ctx, phaseLockDelay()) {
			return
		}

		if ok := l.observeRX(proto, ownID, &counter); !ok {
			return
		}

		if l.bus != nil {
			l.sampleAndTransmit(proto, ownID)
		}
	}
}

// observeRX is step 1: read the counter, and on change read/decode/log
// the frame. Any failure here disconnects.
func (l *Loop) observeRX(proto *dongle.Protocol, ownID uint32, counter *uint16) bool {
	newCounter, err := proto.ReadCounter()
	if err != nil {
		l.log.WithError(err).Error("read_counter failed, disconnecting")
		return false
	}
	if newCounter == *counter {
		return true
	}
	*counter = newCounter

	rd, err := proto.ReadData()
	if err != nil {
		l.log.WithError(err).Error("read_data failed, disconnecting")
		return false
	}
	if rd == nil {
		return true
	}

	lf, err := frame.Decode(rd.Data)
	if err != nil {
		l.log.WithError(err).Error("invalid rx frame, disconnecting")
		return false
	}

	switch {
	case lf.NodeID == 0:
		l.log.WithField("payload", hex.EncodeToString(lf.Payload)).Info("broadcast frame received")
	case lf.NodeID == ownID:
		l.log.WithField("payload", hex.EncodeToString(lf.Payload)).Debug("self frame received")
	default:
		l.log.WithFields(logrus.Fields{
			"node_id": fmt.Sprintf("%08x", lf.NodeID),
			"payload": hex.EncodeToString(lf.Payload),
		}).Info("frame received from other node")
	}

	if l.mgr != nil {
		ul := broker.UlData{
			Time:        time.Now().UTC(),
			NetworkAddr: fmt.Sprintf("%08x", lf.NodeID),
			Data:        hex.EncodeToString(lf.Payload),
			Extension:   broker.UlDataExt{RSSI: rd.RSSI},
		}
		l.state.Uplinks.Add(ul)
		if err := l.mgr.SendULData(ul); err != nil {
			l.log.WithError(err).Warn("send_uldata failed, continuing")
		}
	}
	return true
}

// sampleAndTransmit is steps 2..5: sample both sensors off the event
// loop goroutine, pack the TX buffer (preserving the overlapping
// pressure/humidity write), and transmit.
func (l *Loop) sampleAndTransmit(proto *dongle.Protocol, ownID uint32) {
	var temp, humid uint16
	var pressure int32
	var tempRaw int16

	err := l.pool.Do(func() error {
		var err error
		temp, humid, err = l.bus.ReadSHTC3()
		if err != nil {
			return fmt.Errorf("devloop: shtc3: %w", err)
		}
		if err := l.bus.TriggerLPS22HB(); err != nil {
			return fmt.Errorf("devloop: lps22hb trigger: %w", err)
		}
		pressure, tempRaw, err = l.bus.ReadLPS22HB()
		if err != nil {
			return fmt.Errorf("devloop: lps22hb: %w", err)
		}
		return nil
	})
	if err != nil {
		l.log.WithError(err).Warn("sensor sampling failed, skipping this tick's transmission")
		return
	}

	tC := 175*float64(temp)/65536 - 45
	rh := 100 * float64(humid) / 65536
	pHPa := float64(pressure) / 4096
	t2C := float64(tempRaw) / 100
	l.log.WithFields(logrus.Fields{
		"temp_c": tC, "humidity_pct": rh, "pressure_hpa": pHPa, "lps_temp_c": t2C,
	}).Debug("sensor reading")

	buf := packTXBuffer(ownID, temp, humid, pressure)

	if err := proto.SetValues(dongle.ModeTX, l.cfg.Freq, l.cfg.Power); err != nil {
		l.log.WithError(err).Warn("set_values(tx) failed, restoring rx")
		l.restoreRX(proto)
		return
	}
	if err := proto.WriteData(buf); err != nil {
		l.log.WithError(err).Warn("write_data failed, restoring rx")
		l.restoreRX(proto)
		return
	}
	l.restoreRX(proto)
}

// packTXBuffer builds the device bridge's outbound frame. It intentionally
// reproduces the overlapping writes between pressure and humidity: pressure
// is packed first into bytes 11..15, then humidity's two bytes at 10..12
// overwrite pressure's top two bytes, so only pressure's low 3 bytes (at
// 12..15) survive on the wire.
func packTXBuffer(nodeID uint32, temp, humid uint16, pressure int32) []byte {
	buf := make([]byte, txBufLen)
	binary.BigEndian.PutUint32(buf[0:4], nodeID)
	binary.BigEndian.PutUint16(buf[8:10], temp)
	binary.BigEndian.PutUint32(buf[11:15], uint32(pressure))
	binary.BigEndian.PutUint16(buf[10:12], humid)
	return buf
}

func (l *Loop) restoreRX(proto *dongle.Protocol) {
	if err := proto.SetValues(dongle.ModeRX, l.cfg.Freq, l.cfg.Power); err != nil {
		l.log.WithError(err).Error("rx restore failed")
	}
}

// phaseLockDelay returns the delay until the next wall-clock second
// boundary, per spec: 1000 - ((epoch_ms + 1) mod 1000) ms.
func phaseLockDelay() time.Duration {
	ms := time.Now().UnixMilli()
	d := 1000 - ((ms + 1) % 1000)
	return time.Duration(d) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
