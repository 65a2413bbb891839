package sensors

import "time"

// shtc3Settle is the sensor's own conversion delay between issuing a
// measurement command and reading back the result.
const shtc3Settle = 20 * time.Millisecond

// ReadSHTC3 issues the sensor's raw temperature then raw humidity
// measurement commands, waiting shtc3Settle between the write and the
// read of each. The trailing CRC byte of each 3-byte reply is ignored.
func (b *Bus) ReadSHTC3() (temp, humid uint16, err error) {
	temp, err = b.shtc3Read([]byte{0x78, 0x66})
	if err != nil {
		return 0, 0, err
	}
	humid, err = b.shtc3Read([]byte{0x58, 0xe0})
	if err != nil {
		return 0, 0, err
	}
	return temp, humid, nil
}

func (b *Bus) shtc3Read(cmd []byte) (uint16, error) {
	if err := b.shtc3.Tx(cmd, nil); err != nil {
		return 0, err
	}
	time.Sleep(shtc3Settle)
	reply := make([]byte, 3)
	if err := b.shtc3.Tx(nil, reply); err != nil {
		return 0, err
	}
	return uint16(reply[0])<<8 | uint16(reply[1]), nil
}

// ResetSHTC3 issues the sensor's soft-reset command.
func (b *Bus) ResetSHTC3() error {
	return b.shtc3.Tx([]byte{0x40, 0x1a}, nil)
}
