package common

const (
	ComponentScanner    = "scanner"
	ComponentProcessor  = "processor"
	ComponentCheckpoint = "checkpoint"
	ComponentStream     = "stream"
	ComponentCache      = "cache-refresher"
	ComponentBus        = "event-bus"
	ComponentRecords    = "records"
	ComponentRPC        = "rpc"
	ComponentMetrics    = "metrics"
	ComponentDB         = "db-maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentScanner:    {},
	ComponentProcessor:  {},
	ComponentCheckpoint: {},
	ComponentStream:     {},
	ComponentCache:      {},
	ComponentBus:        {},
	ComponentRecords:    {},
	ComponentRPC:        {},
	ComponentMetrics:    {},
	ComponentDB:         {},
}
