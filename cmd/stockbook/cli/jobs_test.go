package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockbook/stockbook/jobs"
)

func TestTaskForKnownJobs(t *testing.T) {
	for _, name := range TriggerNames() {
		task, err := TaskFor(name, time.Hour)
		require.NoError(t, err, name)
		assert.Equal(t, name, task.Type())
	}
}

func TestTaskForCleanupCarriesRetention(t *testing.T) {
	task, err := TaskFor(jobs.TaskIdempotencyCleanup, 48*time.Hour)
	require.NoError(t, err)

	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 48*time.Hour, payload.Retention)
}

func TestTaskForUnknownJob(t *testing.T) {
	_, err := TaskFor("mail:send", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported job")
}

func TestNilCLIReportsMissingClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(t.Context(), jobs.TaskLedgerAudit)
	assert.Error(t, err)
	_, err = c.InspectQueues(t.Context())
	assert.Error(t, err)
}
