package listing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/database"
)

func TestMarkReadIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	a := seed(t, db, database.NewArticle{URL: "https://a.com"})
	viewer := seedUser(t, db, "alice")

	r := NewRecorder(db, discard)
	first := time.Date(2026, 2, 6, 8, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return first }

	mark, err := r.MarkRead(context.Background(), viewer, a)
	require.NoError(t, err)
	assert.Equal(t, viewer.ID, mark.UserID)
	assert.Equal(t, a, mark.ArticleID)

	second := first.Add(10 * time.Minute)
	r.now = func() time.Time { return second }
	mark, err = r.MarkRead(context.Background(), viewer, a)
	require.NoError(t, err)
	assert.Equal(t, second, mark.ReadAt)

	marks, err := db.GetReadMarks(context.Background(), viewer.ID)
	require.NoError(t, err)
	require.Len(t, marks, 1)
	assert.Equal(t, second, marks[0].ReadAt)
}

func TestMarkReadErrors(t *testing.T) {
	db := openTestDB(t)
	viewer := seedUser(t, db, "alice")
	r := NewRecorder(db, discard)
	ctx := context.Background()

	_, err := r.MarkRead(ctx, nil, 1)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = r.MarkRead(ctx, viewer, 0)
	assert.ErrorIs(t, err, apperr.ErrBadRequest)

	_, err = r.MarkRead(ctx, viewer, 404)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "article with ID 404 not found", apperr.PublicMessage(err))
}

func TestMarkReadUnknownUser(t *testing.T) {
	db := openTestDB(t)
	a := seed(t, db, database.NewArticle{URL: "https://a.com"})
	r := NewRecorder(db, discard)
	ctx := context.Background()

	_, err := r.MarkRead(ctx, &auth.Identity{ID: "deleted-user", Name: "ghost"}, a)
	require.Error(t, err)
	assert.Equal(t, apperr.Referential, apperr.KindOf(err))
	assert.Equal(t, "database relation error", apperr.PublicMessage(err))
	assert.ErrorIs(t, err, database.ErrForeignKey)

	_, err = r.MarkRead(ctx, &auth.Identity{ID: "deleted-user", Name: "ghost"}, a+1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

type failingMarkStore struct{ *database.DB }

func (failingMarkStore) UpsertReadMark(context.Context, string, int64, time.Time) (*database.ReadMark, error) {
	return nil, errors.New("database is locked")
}

func TestMarkReadHidesStoreFailures(t *testing.T) {
	r := NewRecorder(failingMarkStore{}, discard)
	_, err := r.MarkRead(context.Background(), &auth.Identity{ID: "u1", Name: "alice"}, 1)
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.NotContains(t, apperr.PublicMessage(err), "locked")
}
