package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/contre95/playgraph/src/infra/memory"
	"github.com/contre95/playgraph/src/music"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	service := NewService(memory.NewLibrary())
	ctx := context.Background()

	first, err := service.ResolveOrCreate(ctx, "4uLU6hMCjMI75M1A2tKUQC")
	require.NoError(t, err)
	for range 3 {
		again, err := service.ResolveOrCreate(ctx, " 4uLU6hMCjMI75M1A2tKUQC ")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	_, err = service.ResolveOrCreate(ctx, "   ")
	assert.ErrorIs(t, err, music.ErrInvalidInput)
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	service := NewService(memory.NewLibrary())
	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := service.ResolveOrCreate(context.Background(), "racy")
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestResolveAllSkipsMisses(t *testing.T) {
	service := NewService(memory.NewLibrary())
	ids, misses, err := service.ResolveAll(context.Background(), []string{"a", "", "b", "a", "  "})
	require.NoError(t, err)
	assert.Equal(t, 2, misses)
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[2])
	assert.NotEqual(t, ids[0], ids[1])
}

// flakyRegistry fails the first resolution of one external id.
type flakyRegistry struct {
	music.Registry
	failOn string
	failed bool
}

func (r *flakyRegistry) ResolveOrCreate(ctx context.Context, externalID string) (int64, error) {
	if externalID == r.failOn && !r.failed {
		r.failed = true
		return 0, errors.New("database is locked")
	}
	return r.Registry.ResolveOrCreate(ctx, externalID)
}

func TestResolveAllStopsOnStorageFailure(t *testing.T) {
	service := NewService(&flakyRegistry{Registry: memory.NewLibrary(), failOn: "c"})
	ctx := context.Background()

	ids, misses, err := service.ResolveAll(ctx, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "database is locked")
	assert.NotErrorIs(t, err, music.ErrInvalidInput)
	assert.Nil(t, ids)
	assert.Equal(t, 0, misses)

	ids, misses, err = service.ResolveAll(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 0, misses)
	assert.Len(t, ids, 3)
}

func TestLookups(t *testing.T) {
	service := NewService(memory.NewLibrary())
	ctx := context.Background()
	id, err := service.ResolveOrCreate(ctx, "known")
	require.NoError(t, err)

	got, err := service.LookupInternal(ctx, "known")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	external, err := service.LookupExternal(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "known", external)

	_, err = service.LookupInternal(ctx, "unknown")
	assert.ErrorIs(t, err, music.ErrNotFound)
	_, err = service.LookupExternal(ctx, id+1)
	assert.ErrorIs(t, err, music.ErrNotFound)
	_, err = service.LookupExternal(ctx, 0)
	assert.ErrorIs(t, err, music.ErrInvalidInput)
}

func TestPageWalksEveryIdentityOnce(t *testing.T) {
	service := NewService(memory.NewLibrary())
	ctx := context.Background()
	for i := range 7 {
		_, err := service.ResolveOrCreate(ctx, fmt.Sprintf("t%d", i))
		require.NoError(t, err)
	}

	var seen []int64
	var after int64
	pages := 0
	for {
		page, err := service.Page(ctx, after, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		pages++
		for _, identity := range page {
			assert.Greater(t, identity.ID, after)
			seen = append(seen, identity.ID)
		}
		after = page[len(page)-1].ID
		if pages == 1 {
			// Inserts during the walk land above the cursor.
			_, err := service.ResolveOrCreate(ctx, "late")
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8}, seen)

	_, err := service.Page(ctx, 0, 0)
	assert.ErrorIs(t, err, music.ErrInvalidInput)
	_, err = service.Page(ctx, 0, MaxPageSize+1)
	assert.ErrorIs(t, err, music.ErrInvalidInput)
}

func TestTrackRoutes(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, NewService(memory.NewLibrary()))

	resp, err := app.Test(httptest.NewRequest("POST", "/api/tracks", strings.NewReader(`{"external_id":" abc "}`)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req := httptest.NewRequest("POST", "/api/tracks", strings.NewReader(`{"external_id":" abc "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var identity music.TrackIdentity
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &identity))
	assert.Equal(t, music.TrackIdentity{ID: 1, ExternalID: "abc"}, identity)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/tracks/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/tracks/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/tracks?after=0&limit=0", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
