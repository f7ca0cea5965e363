package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/database"
)

// MarkStore persists read marks.
type MarkStore interface {
	UpsertReadMark(ctx context.Context, userID string, articleID int64, readAt time.Time) (*database.ReadMark, error)
	GetArticleByID(ctx context.Context, id int64) (*database.Article, error)
}

// Recorder marks articles as read for a user.
type Recorder struct {
	store MarkStore
	log   *slog.Logger
	now   func() time.Time
}

// NewRecorder creates a read-mark recorder.
func NewRecorder(store MarkStore, log *slog.Logger) *Recorder {
	return &Recorder{store: store, log: log, now: time.Now}
}

// MarkRead records that viewer read articleID. Marking an article twice
// keeps one mark and moves its timestamp forward.
func (r *Recorder) MarkRead(ctx context.Context, viewer *auth.Identity, articleID int64) (*database.ReadMark, error) {
	if viewer == nil {
		return nil, apperr.E(apperr.Unauthorized, "unauthorized")
	}
	if articleID <= 0 {
		return nil, apperr.E(apperr.BadRequest, "valid articleId is required")
	}

	mark, err := r.store.UpsertReadMark(ctx, viewer.ID, articleID, r.now())
	switch {
	case errors.Is(err, database.ErrForeignKey):
		return nil, r.brokenReference(ctx, viewer, articleID, err)
	case err != nil:
		r.log.ErrorContext(ctx, "Failed to mark article as read",
			"userID", viewer.ID,
			"articleID", articleID,
			"error", err)
		return nil, apperr.Wrap(apperr.Internal, "failed to mark article as read", err)
	}

	r.log.DebugContext(ctx, "Article marked as read", "userID", viewer.ID, "articleID", articleID)
	return mark, nil
}

// brokenReference reports NotFound when the article is missing. Any other
// failed reference, such as a session for a deleted user, is Referential.
func (r *Recorder) brokenReference(ctx context.Context, viewer *auth.Identity, articleID int64, cause error) error {
	_, err := r.store.GetArticleByID(ctx, articleID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, fmt.Sprintf("article with ID %d not found", articleID), cause)
	case err != nil:
		return apperr.Wrap(apperr.Internal, "failed to mark article as read", errors.Join(cause, err))
	}
	r.log.WarnContext(ctx, "Read mark references a missing row",
		"userID", viewer.ID,
		"articleID", articleID,
		"error", cause)
	return apperr.Wrap(apperr.Referential, "database relation error", cause)
}
