package settle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRun(t *testing.T) {
	s := &Scheduler{hour: 4, loc: time.UTC}

	beforeHour := time.Date(2026, 8, 30, 2, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC), s.nextRun(beforeHour))

	afterHour := time.Date(2026, 8, 30, 4, 0, 1, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC), s.nextRun(afterHour))

	exactly := time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 4, 0, 0, 0, time.UTC), s.nextRun(exactly))
}

func TestSummaryText(t *testing.T) {
	s := &Summary{Day: "2026-08-29", Processed: 10, Succeeded: 8, Failed: 2, FailedCos: []int64{4}}
	txt := summaryText(s)
	assert.Contains(t, txt, "2026-08-29")
	assert.Contains(t, txt, "8 succeeded")
	assert.Contains(t, txt, "remediation")

	clean := &Summary{Day: "2026-08-29", Processed: 3, Succeeded: 3}
	assert.NotContains(t, summaryText(clean), "remediation")
}
