package learning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/machine-machine/orgbench/types"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	archive, err := NewArchive(db, zap.NewNop())
	require.NoError(t, err)
	return archive
}

func TestArchiveSaveAndList(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	result := &Result{
		TaskID:           "relay-design",
		Topology:         "star",
		Converged:        true,
		ConvergenceIter:  3,
		FinalDelta:       12.5,
		LearningRate:     4.2,
		TotalUsage:       types.TokenUsage{TotalTokens: 9000, Cost: 0.18},
		QualityPerDollar: 347.2,
		WallTimeSeconds:  82.5,
		Iterations: []IterationRecord{
			{Iteration: 1, Timestamp: time.Now().UTC(), Delta: -3, Winner: "tie"},
			{Iteration: 2, Timestamp: time.Now().UTC(), Delta: 5, Winner: "multi_agent"},
			{Iteration: 3, Timestamp: time.Now().UTC(), Delta: 12.5, Winner: "multi_agent"},
		},
	}
	require.NoError(t, archive.Save(ctx, result))

	records, err := archive.List(ctx, "relay-design")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "star", records[0].Topology)
	assert.True(t, records[0].Converged)
	assert.Equal(t, 9000, records[0].TotalTokens)
	assert.Equal(t, 347.2, records[0].QualityPerDollar)
	assert.Equal(t, 82.5, records[0].WallTimeSeconds)

	iterations, err := records[0].Decode()
	require.NoError(t, err)
	require.Len(t, iterations, 3)
	assert.Equal(t, 12.5, iterations[2].Delta)
}

func TestArchiveListFiltersByTask(t *testing.T) {
	archive := newTestArchive(t)
	ctx := context.Background()

	require.NoError(t, archive.Save(ctx, &Result{TaskID: "a", Topology: "star"}))
	require.NoError(t, archive.Save(ctx, &Result{TaskID: "b", Topology: "pipeline"}))

	records, err := archive.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].TaskID)

	all, err := archive.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
