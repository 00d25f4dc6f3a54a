package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// GatingMetrics tracks the verification flow. Chain reads dominate the
// latency here, so the timings say more about the RPC endpoints than
// about us. Prometheus export happens at the call site; this tracker
// only feeds the JSON stats endpoint.
type GatingMetrics struct {
	// Verification counters
	VerificationCount int64
	EthereumVerified  int64
	UniversalVerified int64

	// Outcomes
	PassCount  int64
	FailCount  int64
	ErrorCount int64

	// Requirements evaluated across all verifications
	RequirementsChecked int64

	// Performance metrics (in milliseconds)
	TotalVerifyTime int64
	MaxVerifyTime   int64
	MinVerifyTime   int64

	mu             sync.RWMutex
	verifyTimings  []int64
	maxTimingsSize int
}

// VerifyMetric represents a single lock verification attempt
type VerifyMetric struct {
	Category     string // "ethereum_profile", "universal_profile"
	Passed       bool
	Error        bool
	Requirements int
	Duration     time.Duration
	Timestamp    time.Time
}

// NewGatingMetrics creates a new gating metrics tracker
func NewGatingMetrics() *GatingMetrics {
	return &GatingMetrics{
		verifyTimings:  make([]int64, 0, 10000),
		maxTimingsSize: 10000,
	}
}

// RecordVerification records one verification attempt
func (gm *GatingMetrics) RecordVerification(metric VerifyMetric) {
	atomic.AddInt64(&gm.VerificationCount, 1)

	switch metric.Category {
	case "ethereum_profile":
		atomic.AddInt64(&gm.EthereumVerified, 1)
	case "universal_profile":
		atomic.AddInt64(&gm.UniversalVerified, 1)
	}

	switch {
	case metric.Error:
		atomic.AddInt64(&gm.ErrorCount, 1)
	case metric.Passed:
		atomic.AddInt64(&gm.PassCount, 1)
	default:
		atomic.AddInt64(&gm.FailCount, 1)
	}

	atomic.AddInt64(&gm.RequirementsChecked, int64(metric.Requirements))

	durationMs := metric.Duration.Milliseconds()
	atomic.AddInt64(&gm.TotalVerifyTime, durationMs)
	gm.updateMinMax(durationMs)

	gm.mu.Lock()
	if len(gm.verifyTimings) < gm.maxTimingsSize {
		gm.verifyTimings = append(gm.verifyTimings, durationMs)
	}
	gm.mu.Unlock()
}

// updateMinMax updates min and max verification times
func (gm *GatingMetrics) updateMinMax(duration int64) {
	for {
		oldMin := atomic.LoadInt64(&gm.MinVerifyTime)
		if oldMin == 0 || duration < oldMin {
			if atomic.CompareAndSwapInt64(&gm.MinVerifyTime, oldMin, duration) {
				break
			}
		} else {
			break
		}
	}

	for {
		oldMax := atomic.LoadInt64(&gm.MaxVerifyTime)
		if duration > oldMax {
			if atomic.CompareAndSwapInt64(&gm.MaxVerifyTime, oldMax, duration) {
				break
			}
		} else {
			break
		}
	}
}

// GetStats returns current metrics as a map
func (gm *GatingMetrics) GetStats() map[string]interface{} {
	verifyCount := atomic.LoadInt64(&gm.VerificationCount)
	totalTime := atomic.LoadInt64(&gm.TotalVerifyTime)

	var avgTime float64
	if verifyCount > 0 {
		avgTime = float64(totalTime) / float64(verifyCount)
	}

	var passRate float64
	decided := atomic.LoadInt64(&gm.PassCount) + atomic.LoadInt64(&gm.FailCount)
	if decided > 0 {
		passRate = float64(atomic.LoadInt64(&gm.PassCount)) / float64(decided) * 100
	}

	var errorRate float64
	if verifyCount > 0 {
		errorRate = float64(atomic.LoadInt64(&gm.ErrorCount)) / float64(verifyCount) * 100
	}

	gm.mu.RLock()
	p50, p95, p99 := gm.calculatePercentiles()
	gm.mu.RUnlock()

	return map[string]interface{}{
		"total_verifications":  verifyCount,
		"ethereum_verified":    atomic.LoadInt64(&gm.EthereumVerified),
		"universal_verified":   atomic.LoadInt64(&gm.UniversalVerified),
		"pass_count":           atomic.LoadInt64(&gm.PassCount),
		"fail_count":           atomic.LoadInt64(&gm.FailCount),
		"pass_rate":            passRate,
		"error_count":          atomic.LoadInt64(&gm.ErrorCount),
		"error_rate":           errorRate,
		"requirements_checked": atomic.LoadInt64(&gm.RequirementsChecked),
		"avg_verify_time_ms":   avgTime,
		"min_verify_time_ms":   atomic.LoadInt64(&gm.MinVerifyTime),
		"max_verify_time_ms":   atomic.LoadInt64(&gm.MaxVerifyTime),
		"p50_verify_time_ms":   p50,
		"p95_verify_time_ms":   p95,
		"p99_verify_time_ms":   p99,
		"timestamp":            time.Now().Unix(),
	}
}

// calculatePercentiles calculates p50, p95, p99 from recent timings
// Note: assumes mu is already locked
func (gm *GatingMetrics) calculatePercentiles() (p50, p95, p99 int64) {
	if len(gm.verifyTimings) == 0 {
		return 0, 0, 0
	}

	timings := make([]int64, len(gm.verifyTimings))
	copy(timings, gm.verifyTimings)

	for i := 0; i < len(timings); i++ {
		for j := i + 1; j < len(timings); j++ {
			if timings[j] < timings[i] {
				timings[i], timings[j] = timings[j], timings[i]
			}
		}
	}

	n := len(timings)
	p50 = timings[(n*50)/100]
	p95 = timings[(n*95)/100]
	p99 = timings[(n*99)/100]

	return
}

// Reset clears all metrics
func (gm *GatingMetrics) Reset() {
	atomic.StoreInt64(&gm.VerificationCount, 0)
	atomic.StoreInt64(&gm.EthereumVerified, 0)
	atomic.StoreInt64(&gm.UniversalVerified, 0)
	atomic.StoreInt64(&gm.PassCount, 0)
	atomic.StoreInt64(&gm.FailCount, 0)
	atomic.StoreInt64(&gm.ErrorCount, 0)
	atomic.StoreInt64(&gm.RequirementsChecked, 0)
	atomic.StoreInt64(&gm.TotalVerifyTime, 0)
	atomic.StoreInt64(&gm.MaxVerifyTime, 0)
	atomic.StoreInt64(&gm.MinVerifyTime, 0)

	gm.mu.Lock()
	gm.verifyTimings = gm.verifyTimings[:0]
	gm.mu.Unlock()
}
