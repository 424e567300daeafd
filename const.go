package match

const (
	// EngineVersion is the current version of the backtesting engine
	EngineVersion = "v1.0.0"

	// SnapshotSchemaVersion is the current version of the snapshot schema
	// Increment this when the snapshot format changes in a backward-incompatible way
	SnapshotSchemaVersion = 1
)

const (
	// OwnerAlgo identifies orders and trades that belong to the strategy under test.
	OwnerAlgo = "SUBMISSION"
	// OwnerMarket identifies synthetic liquidity and replayed participants.
	OwnerMarket = "market"
)

const (
	DefaultTickSize     int64 = 100
	DefaultQuoteLevels        = 3
	DefaultDenomination       = "SEASHELLS"
)
