package hardware

// Codec register map. Values are datasheet constants; the driver treats them
// as opaque addresses.
//
// 0x000-0x0FF  top-level chip registers, owned by the chip core (volatile)
// 0x100-0x1FF  analog blocks
// 0x200-0x3BF  digital codec (CDC) blocks
// 0x3C0-0x3FF  headset detection block (volatile)
const (
	RegChipCtl    Register = 0x000
	RegChipStatus Register = 0x001
	RegChipID0    Register = 0x004 // ID bytes 0-3 big-endian at 0x004-0x007
	RegChipVer    Register = 0x008 // [4:0]=silicon revision
	RegPinCtlOE0  Register = 0x040 // [7]=LDO_H disabled, [4]=LDO_H override
	RegPinCtlOE1  Register = 0x041 // [0]=central bandgap enabled, [1]=bias fast settle

	RegIntrMask0   Register = 0x094
	RegIntrStatus0 Register = 0x098 // [0]=bus health [1]=removal [2]=potential [3]=insertion
	RegIntrClear0  Register = 0x09C

	RegBiasRefCtl          Register = 0x100
	RegBiasCentralBGCtl    Register = 0x101
	RegBiasConfigModeBGCtl Register = 0x102
	RegConfigModeFreq      Register = 0x104
	RegConfigModeTest      Register = 0x105
	RegClkBuffEn1          Register = 0x108
	RegClkBuffEn2          Register = 0x109
	RegLDOHMode1           Register = 0x110

	RegMicB1Ctl      Register = 0x118
	RegMicB1IntRbias Register = 0x119
	RegMicB1MBHC     Register = 0x11A
	RegMicB2Ctl      Register = 0x11C
	RegMicB2IntRbias Register = 0x11D
	RegMicB2MBHC     Register = 0x11E
	RegMicB3Ctl      Register = 0x120
	RegMicB3IntRbias Register = 0x121
	RegMicB3MBHC     Register = 0x122
	RegMicB4Ctl      Register = 0x124
	RegMicB4IntRbias Register = 0x125
	RegMicB4MBHC     Register = 0x126
	RegMicBCfilt1Ctl Register = 0x128
	RegMicBCfilt1Val Register = 0x129
	RegMicBCfilt2Ctl Register = 0x12A
	RegMicBCfilt2Val Register = 0x12B
	RegMicBCfilt3Ctl Register = 0x12C
	RegMicBCfilt3Val Register = 0x12D

	RegTxComBias       Register = 0x130
	RegMBHCScalingMux1 Register = 0x134
	RegTx12En          Register = 0x138
	RegTx12TestCtl     Register = 0x139
	RegTx34En          Register = 0x13A
	RegTx34TestCtl     Register = 0x13B
	RegTx56En          Register = 0x13C
	RegTx56TestCtl     Register = 0x13D
	RegTx7MBHCEn       Register = 0x140
	RegTx7MBHCTestCtl  Register = 0x141

	RegRxComBias   Register = 0x150
	RegRxHPHLGain  Register = 0x151
	RegRxHPHRGain  Register = 0x152
	RegRxLine1Gain Register = 0x153
	RegRxLine3Gain Register = 0x154
	RegMBHCHPH     Register = 0x160
	RegCPEn        Register = 0x170
	RegCPStatic    Register = 0x171

	RegCdcClkMCLKCtl      Register = 0x200
	RegCdcClkOthrCtl      Register = 0x201
	RegCdcClkOthrResetCtl Register = 0x202
	RegCdcRx1B6Ctl        Register = 0x210
	RegCdcCLSGCtl         Register = 0x218
	RegCdcConnCLSGCtl     Register = 0x219
	RegCdcConnTxSBB1Ctl   Register = 0x220 // 10 consecutive TX slot registers
	RegCdcTx1MuxCtl       Register = 0x230 // 10 consecutive TX mux registers
	RegCdcConnRxSBB1Ctl   Register = 0x240
	RegCdcConnRxSBB2Ctl   Register = 0x241

	RegCdcMBHCEnCtl   Register = 0x3C0
	RegCdcMBHCB1Ctl   Register = 0x3C1
	RegCdcMBHCB2Ctl   Register = 0x3C2
	RegCdcMBHCIntCtl  Register = 0x3C3
	RegCdcMBHCClkCtl  Register = 0x3C4
	RegCdcMBHCTimerB1 Register = 0x3C5
	RegCdcMBHCTimerB2 Register = 0x3C6
	RegCdcMBHCTimerB3 Register = 0x3C7
	RegCdcMBHCTimerB6 Register = 0x3CA
	RegCdcMBHCVoltB1  Register = 0x3CB
	RegCdcMBHCVoltB2  Register = 0x3CC
	RegCdcMBHCVoltB3  Register = 0x3CD
	RegCdcMBHCVoltB4  Register = 0x3CE
)

// MaxRegister is the highest valid codec register address.
const MaxRegister Register = 0x3FF

// CacheSize is the default shadow cache size (one slot per register).
const CacheSize = int(MaxRegister) + 1

// Serial audio bus interface registers. These live in the separate interface
// address space and are accessed through a raw Bus, never through RegMap.
const (
	SlimPortIntEn0     Register = 0x30
	SlimPortIntStatus0 Register = 0x34
	SlimPortIntClr0    Register = 0x38
	SlimPortIntSource0 Register = 0x60 // 8 consecutive source registers per status register

	SlimNumPortReg = 3
)

// IsVolatile reports whether reg must never be served from the shadow cache.
// Top-level registers are written by the chip core behind the driver's back
// and the detection block updates its own registers.
func IsVolatile(reg Register) bool {
	return reg >= RegCdcMBHCEnCtl || reg < 0x100
}

var readable = func() map[Register]bool {
	regs := []Register{
		RegChipCtl, RegChipStatus, RegChipID0, RegChipID0 + 1, RegChipID0 + 2, RegChipID0 + 3, RegChipVer,
		RegPinCtlOE0, RegPinCtlOE1,
		RegIntrMask0, RegIntrStatus0,
		RegBiasRefCtl, RegBiasCentralBGCtl, RegBiasConfigModeBGCtl,
		RegConfigModeFreq, RegConfigModeTest, RegClkBuffEn1, RegClkBuffEn2,
		RegLDOHMode1,
		RegMicB1Ctl, RegMicB1IntRbias, RegMicB1MBHC,
		RegMicB2Ctl, RegMicB2IntRbias, RegMicB2MBHC,
		RegMicB3Ctl, RegMicB3IntRbias, RegMicB3MBHC,
		RegMicB4Ctl, RegMicB4IntRbias, RegMicB4MBHC,
		RegMicBCfilt1Ctl, RegMicBCfilt1Val, RegMicBCfilt2Ctl, RegMicBCfilt2Val,
		RegMicBCfilt3Ctl, RegMicBCfilt3Val,
		RegTxComBias, RegMBHCScalingMux1,
		RegTx12En, RegTx12TestCtl, RegTx34En, RegTx34TestCtl, RegTx56En, RegTx56TestCtl,
		RegTx7MBHCEn, RegTx7MBHCTestCtl,
		RegRxComBias, RegRxHPHLGain, RegRxHPHRGain, RegRxLine1Gain, RegRxLine3Gain,
		RegMBHCHPH, RegCPEn, RegCPStatic,
		RegCdcClkMCLKCtl, RegCdcClkOthrCtl, RegCdcClkOthrResetCtl, RegCdcRx1B6Ctl,
		RegCdcCLSGCtl, RegCdcConnCLSGCtl, RegCdcConnRxSBB1Ctl, RegCdcConnRxSBB2Ctl,
		RegCdcMBHCEnCtl, RegCdcMBHCB1Ctl, RegCdcMBHCB2Ctl, RegCdcMBHCIntCtl, RegCdcMBHCClkCtl,
	}
	m := make(map[Register]bool, len(regs)+20)
	for _, r := range regs {
		m[r] = true
	}
	for i := Register(0); i < 10; i++ {
		m[RegCdcConnTxSBB1Ctl+i] = true
		m[RegCdcTx1MuxCtl+i] = true
	}
	return m
}()

// IsReadable reports whether reg can be read back from the chip.
func IsReadable(reg Register) bool {
	return readable[reg]
}
