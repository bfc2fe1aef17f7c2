package metrics

import (
	"strings"
	"time"
)

// StepCompleted records the outcome and latency of a pipeline step.
// Seed steps ("seed:2:Silver") are folded into a single "seed" label.
func StepCompleted(step, result string, d time.Duration) {
	if !enabled {
		return
	}
	step = stepLabel(step)
	stepTotal.WithLabelValues(step, result).Inc()
	if result != "skipped" {
		stepDuration.WithLabelValues(step).Observe(d.Seconds())
	}
}

// GasUsed records gas consumed by a mined transaction.
func GasUsed(step string, gas uint64) {
	if !enabled {
		return
	}
	gasUsedTotal.WithLabelValues(stepLabel(step)).Add(float64(gas))
}

// TierSeeded records one successful addTier transaction.
func TierSeeded() {
	if !enabled {
		return
	}
	tiersSeededTotal.Inc()
}

// ConfirmationPolls records how many head polls a confirmation wait took.
func ConfirmationPolls(polls int) {
	if !enabled {
		return
	}
	confirmationPolls.Observe(float64(polls))
}

// Verification records an explorer verification outcome.
func Verification(result string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(result).Inc()
}

func stepLabel(step string) string {
	name, _, _ := strings.Cut(step, ":")
	return name
}
