package cachetx

// CacheEntryStatus tells how the stored response was involved in
// producing a transaction's response.
type CacheEntryStatus int

const (
	StatusUndefined CacheEntryStatus = iota
	// StatusUsed means the stored response was served without validation.
	StatusUsed
	// StatusValidated means the stored response was validated with a 304.
	StatusValidated
	// StatusUpdated means the stored response was replaced by a new one.
	StatusUpdated
	// StatusNotInCache means nothing was stored for the request.
	StatusNotInCache
	// StatusCantConditionalize means the stored response could not be
	// validated and was fetched again unconditionally.
	StatusCantConditionalize
	// StatusOther covers everything else, e.g. bypassed requests.
	StatusOther

	numStatuses
)

func (s CacheEntryStatus) String() string {
	switch s {
	case StatusUndefined:
		return "undefined"
	case StatusUsed:
		return "used"
	case StatusValidated:
		return "validated"
	case StatusUpdated:
		return "updated"
	case StatusNotInCache:
		return "not-in-cache"
	case StatusCantConditionalize:
		return "cant-conditionalize"
	case StatusOther:
		return "other"
	}
	return "unknown"
}

// statusLattice holds the status of one transaction attempt. A status is
// set once; only StatusOther may replace an earlier one, and nothing
// replaces StatusOther.
type statusLattice struct {
	status CacheEntryStatus
}

func (l *statusLattice) set(s CacheEntryStatus) bool {
	switch {
	case l.status == s:
		return true
	case l.status == StatusOther:
		return false
	case s == StatusOther, l.status == StatusUndefined:
		l.status = s
		return true
	}
	return false
}

func (l *statusLattice) get() CacheEntryStatus {
	return l.status
}

func (l *statusLattice) reset() {
	l.status = StatusUndefined
}
