package pcissd

import (
	"math"

	"github.com/jstevens-sim/pcissd/internal/constants"
)

// InterfaceBandwidth is a transport link's raw bandwidth in bytes per
// second. Zero means "no interface": the layer contributes zero delay.
type InterfaceBandwidth uint64

// Named interface speeds.
const (
	SATA2 InterfaceBandwidth = 300_000_000   // SATA 2.0 / SAS, 300 MB/s
	SATA3 InterfaceBandwidth = 600_000_000   // SATA 3.0 / SAS, 600 MB/s
	PCI2  InterfaceBandwidth = 500_000_000   // PCIe 2.0, per lane
	PCI3  InterfaceBandwidth = 1_000_000_000 // PCIe 3.0, per lane
	DMI2  InterfaceBandwidth = 2_500_000_000 // Intel DMI 2.0
	None  InterfaceBandwidth = 0
)

// LaneCount is restricted to the physically valid values for a multi-lane
// link.
type LaneCount uint64

// validLaneCounts are the only values Config.Validate accepts.
var validLaneCounts = map[LaneCount]bool{1: true, 2: true, 4: true, 8: true, 16: true}

// Config holds the tunables that used to be compile-time constants,
// constructed and validated once at startup instead.
type Config struct {
	// InternalClock:ExternalClock is the ratio driving System's external-to-
	// internal clock-domain crosser. Keep InternalClock at a rate such that
	// one internal tick is one nanosecond, since delay derivation below
	// assumes that.
	InternalClock uint64
	ExternalClock uint64

	// BackingClock1:BackingClock2 is the ratio driving the internal-to-
	// backing-simulator clock-domain crosser.
	BackingClock1 uint64
	BackingClock2 uint64

	Layer1Type InterfaceBandwidth
	Layer2Type InterfaceBandwidth

	Layer1Lanes LaneCount
	Layer2Lanes LaneCount

	Layer1FullDuplex bool
	Layer2FullDuplex bool

	// EnableDMA turns on the scatter/gather DMA side-channel. The host
	// memory size it validates sg_base against is supplied separately,
	// at System.RegisterDMA time, not here.
	EnableDMA bool
}

// DefaultConfig is a reasonable out-of-the-box setup: Layer 1 is PCIe 3.0
// x16 full duplex, Layer 2 is absent, DMA is enabled, and the simulator
// runs its internal clock at half the external (host) clock.
func DefaultConfig() Config {
	return Config{
		InternalClock:    1,
		ExternalClock:    2,
		BackingClock1:    2,
		BackingClock2:    3,
		Layer1Type:       PCI3,
		Layer2Type:       None,
		Layer1Lanes:      16,
		Layer2Lanes:      1,
		Layer1FullDuplex: true,
		Layer2FullDuplex: false,
		EnableDMA:        true,
	}
}

// Validate fails fast on out-of-range configuration rather than letting a
// bad Config manifest as a division by zero or a silently-wrong delay later.
func (c Config) Validate() error {
	if c.InternalClock == 0 || c.ExternalClock == 0 {
		return NewError("Config.Validate", ErrCodeInvalidParameters, "internal/external clock ratio must be positive")
	}
	if c.BackingClock1 == 0 || c.BackingClock2 == 0 {
		return NewError("Config.Validate", ErrCodeInvalidParameters, "backing clock ratio must be positive")
	}
	if !validLaneCounts[c.Layer1Lanes] {
		return NewError("Config.Validate", ErrCodeInvalidParameters, "layer 1 lane count must be one of 1,2,4,8,16")
	}
	if !validLaneCounts[c.Layer2Lanes] {
		return NewError("Config.Validate", ErrCodeInvalidParameters, "layer 2 lane count must be one of 1,2,4,8,16")
	}
	return nil
}

// delayTicks computes ceil((numBytes / (efficiency/100)) / bytesPerSecond *
// 1e9), the tick cost of moving numBytes across a link running at
// bytesPerSecond with the given efficiency percentage. A zero bandwidth
// always yields zero delay ("no interface").
func delayTicks(numBytes uint64, bps InterfaceBandwidth, efficiency uint64) uint64 {
	if bps == 0 {
		return 0
	}
	effective := float64(numBytes) / (float64(efficiency) / 100.0)
	seconds := effective / float64(bps)
	return uint64(math.Ceil(seconds * 1e9))
}

// layerDelays derives (dataDelay, commandDelay) in ticks for a layer
// carrying bps bandwidth: data delay covers one command plus one sector,
// command delay covers the bare command.
func layerDelays(bps InterfaceBandwidth) (dataDelay, commandDelay uint64) {
	dataDelay = delayTicks(constants.CommandSize+constants.SectorSize, bps, constants.ProtocolEfficiency)
	commandDelay = delayTicks(constants.CommandSize, bps, constants.ProtocolEfficiency)
	return dataDelay, commandDelay
}
