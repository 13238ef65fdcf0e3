// internal/status/encode.go
package status

import "encoding/binary"

// Encode converts a Snapshot into a full device status block.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError

	// two ASCII chars per slot, high byte first, zero padded
	name := s.DeviceName
	if len(name) > DeviceNameMaxChars {
		name = name[:DeviceNameMaxChars]
	}
	for i := 0; i < len(name); i++ {
		slot := SlotDeviceNameStart + i/2
		if i%2 == 0 {
			regs[slot] |= uint16(name[i]) << 8
		} else {
			regs[slot] |= uint16(name[i])
		}
	}

	return regs
}

// Bytes lays registers out big-endian, as the controller stores words.
func Bytes(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(out[2*i:], r)
	}
	return out
}
