// Package listing answers paginated article listings and records which
// articles a user has read.
package listing

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/database"
)

// Store is the persistence used by Service.
type Store interface {
	ListArticles(ctx context.Context, q database.ArticleQuery) ([]database.Article, int, error)
	GetReadArticleIDs(ctx context.Context, userID string) ([]int64, error)
	GetArticleByID(ctx context.Context, id int64) (*database.Article, error)
	GetCategories(ctx context.Context) ([]string, error)
}

// Page is one page of a listing.
type Page struct {
	Articles    []database.Article `json:"articles"`
	TotalCount  int                `json:"totalCount"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Limit       int                `json:"limit"`
}

// Service runs the recent, category and search listings.
type Service struct {
	store Store
	log   *slog.Logger
}

// NewService creates a listing service.
func NewService(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log}
}

// List returns one page for req. viewer is the signed-in user or nil.
//
// When viewer is set and req.IncludeRead is false, articles the viewer
// has read are excluded. The read set is fetched before, and outside of,
// the transaction that reads the page and its count, so a mark recorded
// in between may not be reflected.
func (s *Service) List(ctx context.Context, viewer *auth.Identity, req Request) (*Page, error) {
	if req.Page <= 0 {
		req.Page = DefaultPage
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	switch req.Variant {
	case Category:
		if req.Category == "" {
			return nil, apperr.E(apperr.BadRequest, "category name is required")
		}
	case Search:
		if req.Query == "" {
			return nil, apperr.E(apperr.BadRequest, "search query is required")
		}
	}

	where := req.basePredicate()
	if viewer != nil && !req.IncludeRead {
		readIDs, err := s.store.GetReadArticleIDs(ctx, viewer.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, "failed to fetch articles", err)
		}
		if len(readIDs) > 0 {
			where = database.And(where, database.NotIn(database.ColID, readIDs))
		}
	}

	sortBy, desc := req.resolveSort()
	articles, total, err := s.store.ListArticles(ctx, database.ArticleQuery{
		Where:      where,
		SortBy:     sortBy,
		Descending: desc,
		Offset:     offset(req.Page, req.Limit),
		Limit:      req.Limit,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Listing failed", "variant", req.Variant.String(), "error", err)
		return nil, apperr.Wrap(apperr.Internal, "failed to fetch articles", err)
	}
	if articles == nil {
		articles = []database.Article{}
	}

	return &Page{
		Articles:    articles,
		TotalCount:  total,
		TotalPages:  totalPages(total, req.Limit),
		CurrentPage: req.Page,
		Limit:       req.Limit,
	}, nil
}

// Article returns a single article by ID.
func (s *Service) Article(ctx context.Context, id int64) (*database.Article, error) {
	if id <= 0 {
		return nil, apperr.E(apperr.BadRequest, "invalid article ID format")
	}
	a, err := s.store.GetArticleByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.Wrap(apperr.NotFound, "article not found", err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to fetch article", err)
	}
	return a, nil
}

// Categories returns the distinct non-empty categories, sorted.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to fetch categories", err)
	}
	return categories, nil
}

// offset saturates at math.MaxInt, which still yields an empty page and a
// full count.
func offset(page, limit int) int {
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

func totalPages(total, limit int) int {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return pages
}
