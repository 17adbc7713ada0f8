package dunning

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newCacheForTest(t *testing.T) *TemplateCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTemplateCache(client, time.Minute)
}

func TestTemplateCacheAvoidsRepeatedLoads(t *testing.T) {
	cache := newCacheForTest(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context, orgID int64, level Level) (*Template, error) {
		loads++
		return &Template{OrganizationID: orgID, Level: level, Subject: "s", Content: "c"}, nil
	}

	for i := 0; i < 3; i++ {
		tpl, err := cache.Fetch(ctx, 1, LevelReminder, loader)
		require.NoError(t, err)
		require.NotNil(t, tpl)
		require.Equal(t, "s", tpl.Subject)
	}
	require.Equal(t, 1, loads)
}

func TestTemplateCacheCachesAbsence(t *testing.T) {
	cache := newCacheForTest(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context, orgID int64, level Level) (*Template, error) {
		loads++
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		tpl, err := cache.Fetch(ctx, 1, LevelFinal, loader)
		require.NoError(t, err)
		require.Nil(t, tpl)
	}
	require.Equal(t, 1, loads)
}

func TestTemplateCacheInvalidate(t *testing.T) {
	cache := newCacheForTest(t)
	ctx := context.Background()

	loads := 0
	loader := func(ctx context.Context, orgID int64, level Level) (*Template, error) {
		loads++
		return &Template{OrganizationID: orgID, Level: level, Subject: "s"}, nil
	}

	_, err := cache.Fetch(ctx, 1, LevelReminder, loader)
	require.NoError(t, err)
	cache.Invalidate(ctx, 1, LevelReminder)
	_, err = cache.Fetch(ctx, 1, LevelReminder, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestTemplateCacheNilDegradesToLoader(t *testing.T) {
	var cache *TemplateCache
	loads := 0
	loader := func(ctx context.Context, orgID int64, level Level) (*Template, error) {
		loads++
		return nil, nil
	}
	_, err := cache.Fetch(context.Background(), 1, LevelReminder, loader)
	require.NoError(t, err)
	require.Equal(t, 1, loads)
}
