package sensors

const (
	lpsCtrlReg2   = 0x11
	lpsStatus     = 0x27
	lpsPressOutXL = 0x28
	lpsPressOutL  = 0x29
	lpsPressOutH  = 0x2a
	lpsTempOutL   = 0x2b
	lpsTempOutH   = 0x2c

	lpsOneShotBit = 0x01
	lpsResetBit   = 0x04
)

func (b *Bus) lpsReadReg(reg byte) (byte, error) {
	out := make([]byte, 1)
	if err := b.lps.Tx([]byte{reg}, out); err != nil {
		return 0, err
	}
	return out[0], nil
}

func (b *Bus) lpsWriteReg(reg, val byte) error {
	return b.lps.Tx([]byte{reg, val}, nil)
}

// TriggerLPS22HB reads CTRL_REG2, ORs in the one-shot bit, and writes it
// back, starting a single pressure/temperature conversion.
func (b *Bus) TriggerLPS22HB() error {
	v, err := b.lpsReadReg(lpsCtrlReg2)
	if err != nil {
		return err
	}
	return b.lpsWriteReg(lpsCtrlReg2, v|lpsOneShotBit)
}

// ReadLPS22HB reads the status register and returns whichever of
// pressure/temperature are ready; a bit not yet set yields 0 for that
// value, matching the sensor's polled one-shot protocol.
func (b *Bus) ReadLPS22HB() (pressure int32, temp int16, err error) {
	status, err := b.lpsReadReg(lpsStatus)
	if err != nil {
		return 0, 0, err
	}
	if status&0x01 != 0 {
		xl, err := b.lpsReadReg(lpsPressOutXL)
		if err != nil {
			return 0, 0, err
		}
		l, err := b.lpsReadReg(lpsPressOutL)
		if err != nil {
			return 0, 0, err
		}
		h, err := b.lpsReadReg(lpsPressOutH)
		if err != nil {
			return 0, 0, err
		}
		pressure = int32(h)<<16 | int32(l)<<8 | int32(xl)
	}
	if status&0x02 != 0 {
		l, err := b.lpsReadReg(lpsTempOutL)
		if err != nil {
			return 0, 0, err
		}
		h, err := b.lpsReadReg(lpsTempOutH)
		if err != nil {
			return 0, 0, err
		}
		temp = int16(h)<<8 | int16(l)
	}
	return pressure, temp, nil
}

// ResetLPS22HB ORs the software-reset bit into CTRL_REG2 and polls until
// the device clears it.
func (b *Bus) ResetLPS22HB() error {
	v, err := b.lpsReadReg(lpsCtrlReg2)
	if err != nil {
		return err
	}
	if err := b.lpsWriteReg(lpsCtrlReg2, v|lpsResetBit); err != nil {
		return err
	}
	for {
		v, err := b.lpsReadReg(lpsCtrlReg2)
		if err != nil {
			return err
		}
		if v&lpsResetBit == 0 {
			return nil
		}
	}
}
