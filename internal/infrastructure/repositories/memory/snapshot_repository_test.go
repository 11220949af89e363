package memory

import (
	"context"
	"testing"
	"time"

	"homestream/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRepository_SaveAndGetStatus(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	status := domain.StatusInfo{Value: domain.StatusOnline, LastSeen: time.Now()}
	require.NoError(t, repo.SaveStatus(ctx, "camera-1", status))

	got, err := repo.GetStatus(ctx, "camera-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOnline, got.Value)
}

func TestSnapshotRepository_LatestValueOnly(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveStatus(ctx, "camera-1", domain.StatusInfo{Value: domain.StatusOnline}))
	require.NoError(t, repo.SaveStatus(ctx, "camera-1", domain.StatusInfo{Value: domain.StatusOffline}))

	got, err := repo.GetStatus(ctx, "camera-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOffline, got.Value)
}

func TestSnapshotRepository_GetStatusUnknownDevice(t *testing.T) {
	repo := NewMemorySnapshotRepository()

	_, err := repo.GetStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}

func TestSnapshotRepository_Remove(t *testing.T) {
	repo := NewMemorySnapshotRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveStatus(ctx, "camera-1", domain.StatusInfo{Value: domain.StatusOnline}))
	require.NoError(t, repo.SaveMetrics(ctx, domain.StreamMetrics{DeviceID: "camera-1", CurrentFPS: 5}))
	require.NoError(t, repo.Remove(ctx, "camera-1"))

	_, err := repo.GetStatus(ctx, "camera-1")
	assert.ErrorIs(t, err, domain.ErrDeviceNotFound)
}
