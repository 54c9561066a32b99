package poolconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroMonitoringPeriod(t *testing.T) {
	cfg := Default()
	cfg.Monitoring.MonitoringPeriodMS = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidateRejectsSamplingIntervalLargerThanMonitoringPeriod(t *testing.T) {
	cfg := Default()
	cfg.Monitoring.SamplingIntervalMS = cfg.Monitoring.MonitoringPeriodMS + 1

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsOutOfRangePercentile(t *testing.T) {
	cfg := Default()
	cfg.Monitoring.LatencyPercentiles = []int{50, 150}

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsMaxThreadsBelowMinThreads(t *testing.T) {
	cfg := Default()
	cfg.Scaling.MinThreads = 10
	cfg.Scaling.MaxThreads = 5

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRequiresBackendWhenPersistenceEnabled(t *testing.T) {
	cfg := Default()
	cfg.Persistence.Enabled = true
	cfg.Persistence.Backend = ""

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRequiresFilePathForFileBackend(t *testing.T) {
	cfg := Default()
	cfg.Persistence.Enabled = true
	cfg.Persistence.Backend = PersistenceFile

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRequiresDatabaseDSNForDatabaseBackend(t *testing.T) {
	cfg := Default()
	cfg.Persistence.Enabled = true
	cfg.Persistence.Backend = PersistenceDatabase

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsCorePoolSizeGreaterThanMax(t *testing.T) {
	cfg := Default()
	cfg.Pool.CorePoolSize = 100
	cfg.Pool.MaxPoolSize = 10

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestValidateRejectsEmptyPoolName(t *testing.T) {
	cfg := Default()
	cfg.Pool.PoolName = ""

	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.yaml")
	contents := []byte("pool:\n  pool_name: custom-pool\n  core_pool_size: 7\n")
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-pool", cfg.Pool.PoolName)
	assert.Equal(t, 7, cfg.Pool.CorePoolSize)
	// Untouched defaults survive the merge.
	assert.Equal(t, int64(5000), cfg.Monitoring.MonitoringPeriodMS)
}

func TestLoadFromFileMissingFileReturnsError(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
