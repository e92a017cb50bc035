package observability

import (
	"sync"
	"sync/atomic"
)

type StatsSnapshot struct {
	PagesFetched     uint64            `json:"pages_fetched"`
	PagesRendered    uint64            `json:"pages_rendered"`
	RecordsExtracted uint64            `json:"records_extracted"`
	RecordsUpserted  uint64            `json:"records_upserted"`
	SalaryUnparsed   uint64            `json:"salary_unparsed"`
	Runs             uint64            `json:"runs"`
	ErrorsTotal      uint64            `json:"errors_total"`
	RunSecondsTotal  float64           `json:"run_seconds_total"`
	RunSecondsAvg    float64           `json:"run_seconds_avg"`
	ErrorsByType     map[string]uint64 `json:"errors_by_type,omitempty"`
	ErrorsByStage    map[string]uint64 `json:"errors_by_stage,omitempty"`
}

var (
	pagesFetched     uint64
	pagesRendered    uint64
	recordsExtracted uint64
	recordsUpserted  uint64
	salaryUnparsed   uint64
	errorsTotal      uint64

	runCount uint64
	runNanos uint64

	statsMu       sync.Mutex
	errorsByType  = map[string]uint64{}
	errorsByStage = map[string]uint64{}
)

func IncPagesFetched() {
	atomic.AddUint64(&pagesFetched, 1)
}

func IncPagesRendered() {
	atomic.AddUint64(&pagesRendered, 1)
}

func AddRecordsExtracted(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&recordsExtracted, uint64(n))
}

func IncRecordsUpserted() {
	atomic.AddUint64(&recordsUpserted, 1)
}

// IncSalaryUnparsed counts salary strings that were present but yielded nothing.
func IncSalaryUnparsed() {
	atomic.AddUint64(&salaryUnparsed, 1)
}

func ObserveRunDuration(seconds float64) {
	atomic.AddUint64(&runCount, 1)
	if seconds <= 0 {
		return
	}
	atomic.AddUint64(&runNanos, uint64(seconds*1e9))
}

func IncError(errType, stage string) {
	if errType == "" {
		errType = ErrorUnknown
	}
	if stage == "" {
		stage = "unknown"
	}
	atomic.AddUint64(&errorsTotal, 1)
	statsMu.Lock()
	errorsByType[errType]++
	errorsByStage[stage]++
	statsMu.Unlock()
}

func Snapshot() StatsSnapshot {
	statsMu.Lock()
	typeCopy := copyMap(errorsByType)
	stageCopy := copyMap(errorsByStage)
	statsMu.Unlock()

	count := atomic.LoadUint64(&runCount)
	total := float64(atomic.LoadUint64(&runNanos)) / 1e9

	return StatsSnapshot{
		PagesFetched:     atomic.LoadUint64(&pagesFetched),
		PagesRendered:    atomic.LoadUint64(&pagesRendered),
		RecordsExtracted: atomic.LoadUint64(&recordsExtracted),
		RecordsUpserted:  atomic.LoadUint64(&recordsUpserted),
		SalaryUnparsed:   atomic.LoadUint64(&salaryUnparsed),
		Runs:             count,
		ErrorsTotal:      atomic.LoadUint64(&errorsTotal),
		RunSecondsTotal:  total,
		RunSecondsAvg:    average(total, count),
		ErrorsByType:     typeCopy,
		ErrorsByStage:    stageCopy,
	}
}

// Since returns the activity recorded between prev and s. Counters are
// process-wide, so a command diffs two snapshots to report its own work.
func (s StatsSnapshot) Since(prev StatsSnapshot) StatsSnapshot {
	d := StatsSnapshot{
		PagesFetched:     s.PagesFetched - prev.PagesFetched,
		PagesRendered:    s.PagesRendered - prev.PagesRendered,
		RecordsExtracted: s.RecordsExtracted - prev.RecordsExtracted,
		RecordsUpserted:  s.RecordsUpserted - prev.RecordsUpserted,
		SalaryUnparsed:   s.SalaryUnparsed - prev.SalaryUnparsed,
		Runs:             s.Runs - prev.Runs,
		ErrorsTotal:      s.ErrorsTotal - prev.ErrorsTotal,
		RunSecondsTotal:  s.RunSecondsTotal - prev.RunSecondsTotal,
		ErrorsByType:     diffMap(s.ErrorsByType, prev.ErrorsByType),
		ErrorsByStage:    diffMap(s.ErrorsByStage, prev.ErrorsByStage),
	}
	d.RunSecondsAvg = average(d.RunSecondsTotal, d.Runs)
	return d
}

func average(total float64, n uint64) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func diffMap(cur, prev map[string]uint64) map[string]uint64 {
	out := map[string]uint64{}
	for k, v := range cur {
		if delta := v - prev[k]; delta > 0 {
			out[k] = delta
		}
	}
	return out
}

func copyMap(src map[string]uint64) map[string]uint64 {
	if len(src) == 0 {
		return map[string]uint64{}
	}
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
