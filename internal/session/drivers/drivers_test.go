package drivers_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradebot/internal/session"
	"github.com/Veraticus/gradebot/internal/session/drivers"
)

// exerciseStore runs the behaviour every driver must share.
func exerciseStore(t *testing.T, store session.Store, reportsExpired bool) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	s := session.New("u1")
	s.ChatID = "chat-1"
	s.State = session.StateYearSemesterList
	s.Mode = session.ModeInstructor
	s.Trail = session.Trail{InstructorID: "42", InstructorName: "R. Sharma", CourseCode: "MTH101A"}
	s.SetResult(session.ListTerms, &session.ResultSet{
		Items:  []session.Item{{Label: "2023-2024 Odd", Args: []string{"2023-2024", "Odd", "7"}}},
		Total:  1,
		Anchor: "MTH101A",
	})
	s.SetPage(session.ListTerms, 0)
	s.Push(session.NavFrame{State: session.StateProfCourseList, List: session.ListProfCourses, Mode: session.ModeInstructor, Anchor: "42"})
	s.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, s))

	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.State, got.State)
	assert.Equal(t, s.Trail, got.Trail)
	assert.Equal(t, s.Nav, got.Nav)
	assert.Equal(t, s.Result(session.ListTerms), got.Result(session.ListTerms))

	fresh := session.New("u2")
	require.NoError(t, store.Save(ctx, fresh))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	if reportsExpired {
		ids, err := store.Expired(ctx, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		sort.Strings(ids)
		assert.Equal(t, []string{"u1"}, ids)
	}

	require.NoError(t, store.Delete(ctx, "u1"))
	require.NoError(t, store.Delete(ctx, "u1"))
	got, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore(t *testing.T) {
	store := drivers.NewMemoryStore()
	exerciseStore(t, store, true)

	require.NoError(t, store.Close())
	_, err := store.Get(context.Background(), "u2")
	assert.ErrorIs(t, err, session.ErrClosed)
}

func TestMemoryStore_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	store := drivers.NewMemoryStore()

	s := session.New("u1")
	require.NoError(t, store.Save(ctx, s))
	s.State = session.StateShowingGrades

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, session.StateIdle, got.State)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sessions.db")
	store, err := drivers.NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store, true)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := drivers.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store, true)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(context.Background()).Err())

	store := drivers.NewRedisStore(client, time.Minute)
	defer func() { _ = store.Close() }()

	exerciseStore(t, store, false)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := drivers.Open(ctx, drivers.Options{})
	require.NoError(t, err)
	assert.IsType(t, &drivers.MemoryStore{}, store)

	store, err = drivers.Open(ctx, drivers.Options{Kind: drivers.KindSQLite, SQLitePath: filepath.Join(t.TempDir(), "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &drivers.SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = drivers.Open(ctx, drivers.Options{Kind: drivers.KindSQLite})
	assert.Error(t, err)

	_, err = drivers.Open(ctx, drivers.Options{Kind: drivers.KindRedis})
	assert.Error(t, err)

	_, err = drivers.Open(ctx, drivers.Options{Kind: "etcd"})
	assert.ErrorIs(t, err, drivers.ErrInvalidKind)
}
