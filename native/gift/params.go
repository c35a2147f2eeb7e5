package gift

// Deployment constants of the gift module. These are fixed at build time, not
// runtime configuration.
const (
	// MinGiftAmount is the smallest principal accepted, and for split
	// variants also the smallest per-split share.
	MinGiftAmount = 10

	// MinSplitCount and MaxSplitCount bound the claim slots of a multi or
	// code gift. Single gifts always carry exactly one slot.
	MinSplitCount = 2
	MaxSplitCount = 1000

	MaxSkinLength    = 64
	MaxMessageLength = 256

	// ValiditySeconds is the claim window granted at creation.
	ValiditySeconds int64 = 172_800 // 48h

	// GraceSeconds extends the claim window past expiry. Refunds only open
	// once the grace window has fully elapsed.
	GraceSeconds int64 = 86_400 // 24h
)

// ModuleName keys the pause flag and the metrics namespace for this module.
const ModuleName = "gift"

// RoleManager may claim on behalf of recipients; RoleAdmin controls the
// administrative boundaries (token registry, gas price, pause, sweep).
const (
	RoleManager = "ROLE_GIFT_MANAGER"
	RoleAdmin   = "ROLE_GIFT_ADMIN"
)
