package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/gorestore/version"
)

type countingRepository struct {
	flakyRepository
	delay time.Duration
}

func (c *countingRepository) ListVersions(ctx context.Context, id string) ([]*version.NuGetVersion, error) {
	time.Sleep(c.delay)
	return c.flakyRepository.ListVersions(ctx, id)
}

func TestCachingRepository_MemoizesVersions(t *testing.T) {
	inner := &countingRepository{delay: 10 * time.Millisecond}
	repo, err := NewCachingRepository(inner, 16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.ListVersions(context.Background(), "PackageA")
		}()
	}
	wg.Wait()

	vs, err := repo.ListVersions(context.Background(), "packagea")
	require.NoError(t, err)
	require.Len(t, vs, 1)

	// Callers get copies; mutating one must not corrupt the cache.
	vs[0] = nil
	again, err := repo.ListVersions(context.Background(), "packagea")
	require.NoError(t, err)
	assert.NotNil(t, again[0])

	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingRepository_ErrorsAreNotCached(t *testing.T) {
	inner := &flakyRepository{failures: 1, err: assert.AnError}
	repo, err := NewCachingRepository(inner, 16)
	require.NoError(t, err)

	_, err = repo.GetManifest(context.Background(), "packageA", version.MustParse("1.0.0"))
	require.Error(t, err)

	m, err := repo.GetManifest(context.Background(), "packageA", version.MustParse("1.0.0"))
	require.NoError(t, err)
	assert.Equal(t, "packageA", m.ID)

	_, err = repo.GetManifest(context.Background(), "PACKAGEA", version.MustParse("1.0"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}
