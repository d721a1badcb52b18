package metrics

import "time"

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordContractCall records a registrar read.
func RecordContractCall(method string, d time.Duration, err error) {
	if !enabled {
		return
	}
	contractCallTotal.WithLabelValues(method, result(err)).Inc()
	contractCallDuration.WithLabelValues(method).Observe(d.Seconds())
}

// RecordTransaction records a registrar write from submission to receipt.
func RecordTransaction(method string, d time.Duration, err error) {
	if !enabled {
		return
	}
	transactionTotal.WithLabelValues(method, result(err)).Inc()
	transactionDuration.WithLabelValues(method).Observe(d.Seconds())
}

// PhaseResolved records the outcome of one phase resolution.
func PhaseResolved(phase string) {
	if !enabled {
		return
	}
	phaseResolvedTotal.WithLabelValues(phase).Inc()
}

// ResolveSubfetchFailed records a read that was downgraded to unknown.
func ResolveSubfetchFailed(fetch string) {
	if !enabled {
		return
	}
	resolveFailureTotal.WithLabelValues(fetch).Inc()
}

// AuctionAction records a commit, reveal, finalize or send attempt.
func AuctionAction(action, status string) {
	if !enabled {
		return
	}
	actionTotal.WithLabelValues(action, status).Inc()
}

// AddActiveSchedulers adjusts the number of counting schedulers.
func AddActiveSchedulers(delta float64) {
	if !enabled {
		return
	}
	schedulersActive.Add(delta)
}

// RecordBoundaryCrossed counts one scheduler boundary notification.
func RecordBoundaryCrossed() {
	if !enabled {
		return
	}
	boundaryTotal.Inc()
}

// CacheRefresh records a registered-domain cache refresh.
func CacheRefresh(err error) {
	if !enabled {
		return
	}
	cacheRefreshTotal.WithLabelValues(result(err)).Inc()
}

// CacheLookup records a cache hit or miss.
func CacheLookup(hit bool) {
	if !enabled {
		return
	}
	if hit {
		cacheLookupTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupTotal.WithLabelValues("miss").Inc()
}
