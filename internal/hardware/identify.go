package hardware

import (
	"context"
	"fmt"
)

// ChipInfo identifies the codec silicon.
type ChipInfo struct {
	ID       uint32 `json:"id"`
	Revision uint8  `json:"revision"`
}

func (c ChipInfo) String() string {
	return fmt.Sprintf("%08x rev %d", c.ID, c.Revision)
}

// ReadChipInfo reads the chip ID and revision registers over bus.
func ReadChipInfo(ctx context.Context, bus Bus) (ChipInfo, error) {
	var id [4]byte
	for i := range id {
		b, err := bus.Read(ctx, RegChipID0+Register(i))
		if err != nil {
			return ChipInfo{}, fmt.Errorf("chip id[%d]: %w", i, err)
		}
		id[i] = b
	}
	ver, err := bus.Read(ctx, RegChipVer)
	if err != nil {
		return ChipInfo{}, fmt.Errorf("chip version: %w", err)
	}
	return ParseChipInfo(id, ver)
}

// ParseChipInfo decodes the raw ID bytes (big-endian) and version register.
// An all-zero or all-ones ID means nothing answered on the control port.
func ParseChipInfo(id [4]byte, ver byte) (ChipInfo, error) {
	v := uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
	if v == 0 || v == 0xFFFFFFFF {
		return ChipInfo{}, fmt.Errorf("no codec on control port (id 0x%08x)", v)
	}
	return ChipInfo{ID: v, Revision: ver & 0x1F}, nil
}
