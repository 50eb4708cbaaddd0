package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gorestore/version"
)

// flakyRepository fails the first failures calls of each operation.
type flakyRepository struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyRepository) Source() PackageSource {
	return PackageSource{Name: "flaky", Location: "mem://flaky"}
}

func (f *flakyRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return []*version.NuGetVersion{version.MustParse("1.0.0")}, nil
}

func (f *flakyRepository) GetManifest(ctx context.Context, id string, v *version.NuGetVersion) (*Manifest, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return &Manifest{ID: id, Version: v}, nil
}

func fastSettings(attempts int) Settings {
	return Settings{
		RetryAttempts:        attempts,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     2 * time.Millisecond,
	}
}

func TestRetryingRepository_RecoversWithinBudget(t *testing.T) {
	inner := &flakyRepository{failures: 2, err: errors.New("connection reset")}
	repo := NewRetryingRepository(inner, fastSettings(3), nil)

	versions, err := repo.ListVersions(context.Background(), "packageA")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingRepository_ExhaustedBudget(t *testing.T) {
	inner := &flakyRepository{failures: 100, err: errors.New("connection reset")}
	repo := NewRetryingRepository(inner, fastSettings(3), nil)

	_, err := repo.GetManifest(context.Background(), "packageA", version.MustParse("1.0.0"))
	require.Error(t, err)

	var unavailable *SourceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 3, unavailable.Attempts)
	assert.Equal(t, "packageA", unavailable.PackageID)
	assert.Equal(t, "get_manifest", unavailable.Operation)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRetryingRepository_NotFoundIsNotRetried(t *testing.T) {
	inner := &flakyRepository{failures: 100, err: ErrPackageNotFound}
	repo := NewRetryingRepository(inner, fastSettings(3), nil)

	_, err := repo.GetManifest(context.Background(), "packageA", version.MustParse("1.0.0"))
	assert.ErrorIs(t, err, ErrPackageNotFound)
	assert.Equal(t, int32(1), inner.calls.Load())

	var unavailable *SourceUnavailableError
	assert.False(t, errors.As(err, &unavailable))
}

func TestRetryingRepository_Cancelled(t *testing.T) {
	inner := &flakyRepository{failures: 100, err: errors.New("timeout")}
	repo := NewRetryingRepository(inner, fastSettings(3), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListVersions(ctx, "packageA")
	require.Error(t, err)

	var unavailable *SourceUnavailableError
	assert.False(t, errors.As(err, &unavailable), "cancellation must not be reported as unavailability")
}
