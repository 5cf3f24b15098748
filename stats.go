package cachetx

import "sync/atomic"

// Stats are counters over all transactions of a cache.
type Stats struct {
	Used               int64 `json:"used"`
	Validated          int64 `json:"validated"`
	Updated            int64 `json:"updated"`
	NotInCache         int64 `json:"notInCache"`
	CantConditionalize int64 `json:"cantConditionalize"`
	Other              int64 `json:"other"`
	// NetworkTransactions counts requests sent to the network.
	NetworkTransactions int64 `json:"networkTransactions"`
	// Doomed counts entries removed from the cache.
	Doomed       int64 `json:"doomed"`
	LockTimeouts int64 `json:"lockTimeouts"`
	CacheRaces   int64 `json:"cacheRaces"`
}

type stats struct {
	statuses     [numStatuses]atomic.Int64
	network      atomic.Int64
	doomed       atomic.Int64
	lockTimeouts atomic.Int64
	races        atomic.Int64
}

func (s *stats) record(status CacheEntryStatus) {
	if status > StatusUndefined && status < numStatuses {
		s.statuses[status].Add(1)
	}
}

func (s *stats) snapshot() Stats {
	return Stats{
		Used:                s.statuses[StatusUsed].Load(),
		Validated:           s.statuses[StatusValidated].Load(),
		Updated:             s.statuses[StatusUpdated].Load(),
		NotInCache:          s.statuses[StatusNotInCache].Load(),
		CantConditionalize:  s.statuses[StatusCantConditionalize].Load(),
		Other:               s.statuses[StatusOther].Load(),
		NetworkTransactions: s.network.Load(),
		Doomed:              s.doomed.Load(),
		LockTimeouts:        s.lockTimeouts.Load(),
		CacheRaces:          s.races.Load(),
	}
}
