package pcissd

import "github.com/jstevens-sim/pcissd/internal/constants"

// Re-exported protocol constants. These are granularities baked into the
// wire contract, not tunables, which is why they live here rather than on
// Config.
const (
	SectorSize         = constants.SectorSize
	BackingTxnSize     = constants.BackingTxnSize
	DMATxnSize         = constants.DMATxnSize
	MinSectors         = constants.MinSectors
	MaxSectors         = constants.MaxSectors
	CommandSize        = constants.CommandSize
	ProtocolEfficiency = constants.ProtocolEfficiency
	RetryDelay         = constants.RetryDelay
)
