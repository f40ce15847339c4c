package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/blogapi/internal/auth"
	"github.com/example/blogapi/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blog.db")
	require.NoError(t, ApplyMigrations("sqlite", path, logging.Discard()))
	db, err := NewSQLiteDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// exerciseStore runs the same contract checks against every adapter.
func exerciseStore(t *testing.T, db DB) {
	ctx := context.Background()

	alice, err := db.CreateUser(ctx, "alice", "alice@example.com", "hash-a")
	require.NoError(t, err)
	require.NotZero(t, alice.ID)
	bob, err := db.CreateUser(ctx, "bob", "bob@example.com", "hash-b")
	require.NoError(t, err)

	t.Run("duplicates", func(t *testing.T) {
		_, err := db.CreateUser(ctx, "alice", "new@example.com", "h")
		assert.ErrorIs(t, err, auth.ErrDuplicate)
		_, err = db.CreateUser(ctx, "new", "alice@example.com", "h")
		assert.ErrorIs(t, err, auth.ErrDuplicate)
	})

	t.Run("lookups", func(t *testing.T) {
		got, err := db.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, alice.ID, got.ID)
		assert.Equal(t, "hash-a", got.PasswordHash)

		got, err = db.GetUserByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = db.FindCredential(ctx, "bob", "unused@example.com")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, bob.ID, got.ID)

		got, err = db.FindCredential(ctx, "nobody", "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("posts", func(t *testing.T) {
		p1, err := db.CreatePost(ctx, alice.ID, "one", "first")
		require.NoError(t, err)
		p2, err := db.CreatePost(ctx, bob.ID, "two", "second")
		require.NoError(t, err)
		p3, err := db.CreatePost(ctx, alice.ID, "three", "third")
		require.NoError(t, err)

		post, err := db.GetPostByID(ctx, p2)
		require.NoError(t, err)
		require.NotNil(t, post)
		assert.Equal(t, bob.ID, post.UserID)
		assert.Equal(t, "bob", post.Username)
		assert.False(t, post.CreatedAt.IsZero())

		missing, err := db.GetPostByID(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, missing)

		all, err := db.ListPosts(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int64{p3, p2, p1}, []int64{all[0].ID, all[1].ID, all[2].ID})

		mine, err := db.ListPostsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, p3, mine[0].ID)

		none, err := db.ListPostsByUser(ctx, 9999)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)

		require.NoError(t, db.UpdatePost(ctx, p1, "uno", "primero"))
		post, err = db.GetPostByID(ctx, p1)
		require.NoError(t, err)
		assert.Equal(t, "uno", post.Title)
		assert.Equal(t, "primero", post.Content)

		assert.ErrorIs(t, db.UpdatePost(ctx, 9999, "x", "y"), auth.ErrNotFound)

		require.NoError(t, db.DeletePost(ctx, p1))
		assert.ErrorIs(t, db.DeletePost(ctx, p1), auth.ErrNotFound)

		_, err = db.CreatePost(ctx, 9999, "orphan", "no owner")
		assert.Error(t, err)
	})

	require.NoError(t, db.Ping(ctx))
}

func TestMemDB(t *testing.T) {
	exerciseStore(t, NewMemoryDB())
}

func TestSQLiteDB(t *testing.T) {
	exerciseStore(t, newSQLiteTestDB(t))
}

func TestMemDBConcurrentRegistration(t *testing.T) {
	db := NewMemoryDB()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := db.CreateUser(context.Background(), "same", fmt.Sprintf("u%d@example.com", i), "h")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrDuplicate)
	}
	assert.Equal(t, 1, created)
}

func TestSQLiteBackedAPI(t *testing.T) {
	h := newTestAppWithDB(t, newSQLiteTestDB(t)).Handler()

	_, tokenA := signup(t, h, "userA")
	_, tokenB := signup(t, h, "userB")

	rec := do(t, h, http.MethodPost, "/api/users/register", "", registerRequest{Username: "userC", Email: "userA@example.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	id := createPost(t, h, tokenA, "hello")
	path := fmt.Sprintf("/api/posts/%d", id)
	body := postRequest{Title: "hello again", Content: "updated"}

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPut, path, tokenB, body).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPut, path, tokenA, body).Code)

	got := decode[Post](t, do(t, h, http.MethodGet, path, "", nil))
	assert.Equal(t, "hello again", got.Title)
	assert.Equal(t, "userA", got.Username)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, path, tokenA, nil).Code)
	assert.JSONEq(t, `[]`, do(t, h, http.MethodGet, "/api/posts", "", nil).Body.String())
}
