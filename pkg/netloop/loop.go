// Package netloop implements the network bridge's event loop: connect,
// poll the dongle's RX counter, decode and forward uplinks, and drain
// one queued downlink per tick back onto the air.
package netloop

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ifroglab/lora-gateway-bridge/pkg/broker"
	"github.com/ifroglab/lora-gateway-bridge/pkg/dongle"
	"github.com/ifroglab/lora-gateway-bridge/pkg/frame"
	"github.com/ifroglab/lora-gateway-bridge/pkg/state"
)

// maxHexPayload is the open-question-preserving oversize check: the spec's
// original check compares the hex *string* length against 16, not the
// decoded byte length, yielding an effective 8-byte payload limit. That
// behavior is kept verbatim (see SPEC_FULL.md / DESIGN.md).
const maxHexPayload = 16

// Connector opens a fresh connection to the dongle, returning a ready
// Protocol plus a function to close the underlying port. It is called
// once per CONNECTING phase.
type Connector func() (*dongle.Protocol, func() error, error)

// Publisher is the broker-side surface the loop needs. *broker.NetworkMgr
// satisfies it; tests supply a fake.
type Publisher interface {
	SendULData(broker.UlData) error
	SendDLDataResult(broker.DlDataResult) error
}

// Config parameterizes a Loop.
type Config struct {
	Freq         uint32        // 10 kHz units
	Power        byte          // 0..15
	PollInterval time.Duration // default 100ms
	ConnectRetry time.Duration // default 100ms
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ConnectRetry <= 0 {
		c.ConnectRetry = 100 * time.Millisecond
	}
	return c
}

// Loop is the network bridge's CONNECTING/RUNNING state machine.
type Loop struct {
	cfg     Config
	connect Connector
	state   *state.State
	mgr     Publisher
	log     *logrus.Entry
}

// New builds a Loop. connect is called to (re)open the dongle whenever
// the loop is in CONNECTING state.
func New(cfg Config, connect Connector, st *state.State, mgr Publisher, log *logrus.Entry) *Loop {
	if log == nil {
		log = logrus.WithField("component", "netloop")
	}
	return &Loop{cfg: cfg.withDefaults(), connect: connect, state: st, mgr: mgr, log: log}
}

// Run drives the loop until ctx is cancelled. It never returns on a
// runtime error; only a cancelled context ends it.
func (l *Loop) Run(ctx context.Context) {
	for ctx.Err() == nil {
		proto, closer, counter, err := l.connectPhase(ctx)
		if err != nil {
			return // context cancelled while connecting
		}
		l.runConnected(ctx, proto, closer, counter)
	}
}

// connectPhase retries every ConnectRetry until the dongle opens, its
// radio is put into RX mode, and its frame counter is read.
func (l *Loop) connectPhase(ctx context.Context) (*dongle.Protocol, func() error, uint16, error) {
	for {
		if ctx.Err() != nil {
			return nil, nil, 0, ctx.Err()
		}
		proto, closer, err := l.connect()
		if err != nil {
			l.log.WithError(err).Warn("connect failed, retrying")
			if !sleepCtx(ctx, l.cfg.ConnectRetry) {
				return nil, nil, 0, ctx.Err()
			}
			continue
		}
		if err := proto.SetValues(dongle.ModeRX, l.cfg.Freq, l.cfg.Power); err != nil {
			l.log.WithError(err).Warn("set_values(rx) failed during connect, retrying")
			closer()
			if !sleepCtx(ctx, l.cfg.ConnectRetry) {
				return nil, nil, 0, ctx.Err()
			}
			continue
		}
		counter, err := proto.ReadCounter()
		if err != nil {
			l.log.WithError(err).Warn("read_counter failed during connect, retrying")
			closer()
			if !sleepCtx(ctx, l.cfg.ConnectRetry) {
				return nil, nil, 0, ctx.Err()
			}
			continue
		}
		l.log.Info("connected to dongle")
		return proto, closer, counter, nil
	}
}

// runConnected runs RUNNING-phase ticks until a disconnect-worthy error
// occurs or ctx is cancelled.
func (l *Loop) runConnected(ctx context.Context, proto *dongle.Protocol, closer func() error, counter uint16) {
	defer closer()
	for {
		if !sleepCtx(ctx, l.cfg.PollInterval) {
			return
		}

		newCounter, err := proto.ReadCounter()
		if err != nil {
			l.log.WithError(err).Debug("read_counter failed, continuing")
			continue
		}
		if newCounter == counter {
			continue
		}
		counter = newCounter

		rd, err := proto.ReadData()
		if err != nil {
			l.log.WithError(err).Debug("read_data failed, continuing")
			continue
		}
		if rd == nil {
			continue
		}

		lf, err := frame.Decode(rd.Data)
		if err != nil {
			l.log.WithError(err).Warn("invalid rx frame, discarding")
			continue
		}

		addr := fmt.Sprintf("%08x", lf.NodeID)
		ul := broker.UlData{
			Time:        time.Now().UTC(),
			NetworkAddr: addr,
			Data:        hex.EncodeToString(lf.Payload),
			Extension:   broker.UlDataExt{RSSI: rd.RSSI},
		}
		l.state.Uplinks.Add(ul)

		if err := l.mgr.SendULData(ul); err != nil {
			l.log.WithError(err).Warn("send_uldata failed, continuing")
			continue
		}

		dl, ok := l.state.Pending.PopFront(addr)
		if !ok {
			continue
		}

		if !l.transmit(proto, closer, lf.NodeID, &dl) {
			return // post-TX RX-restore failure: disconnect
		}
	}
}

// transmit handles downlink steps 6..11 of a tick: oversize rejection,
// hex decode, TX, and unconditional RX restoration. It returns false iff
// the post-TX RX restore failed, which is the only in-tick condition that
// forces a disconnect.
func (l *Loop) transmit(proto *dongle.Protocol, closer func() error, nodeID uint32, dl *broker.DlData) bool {
	if len(dl.Data) > maxHexPayload {
		result := broker.DlDataResult{DataID: dl.DataID, Status: 1, Message: "exceed 16-byte hexadecimal"}
		if err := l.mgr.SendDLDataResult(result); err != nil {
			l.log.WithError(err).Warn("send_dldata_result failed, continuing")
		}
		return true
	}

	payload, err := hex.DecodeString(dl.Data)
	if err != nil {
		l.log.WithError(err).Warn("downlink hex decode failed, discarding")
		return true
	}

	txBuf := frame.Encode(nodeID, payload)

	if err := proto.SetValues(dongle.ModeTX, l.cfg.Freq, l.cfg.Power); err != nil {
		l.log.WithError(err).Warn("set_values(tx) failed, restoring rx")
		return l.restoreRX(proto)
	}

	if err := proto.WriteData(txBuf); err != nil {
		l.log.WithError(err).Warn("write_data failed, restoring rx")
		return l.restoreRX(proto)
	}

	if !l.restoreRX(proto) {
		return false
	}

	dl.SentAt = time.Now().UTC()
	l.state.Downlinks.Add(*dl)
	return true
}

func (l *Loop) restoreRX(proto *dongle.Protocol) bool {
	if err := proto.SetValues(dongle.ModeRX, l.cfg.Freq, l.cfg.Power); err != nil {
		l.log.WithError(err).Error("rx restore failed, disconnecting")
		return false
	}
	return true
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes
// first. It reports whether the sleep completed normally.
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
