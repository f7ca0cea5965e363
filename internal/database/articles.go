package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const articleColumns = `id, url, image_url, title, summary, rating, category, "Date_Feed", created_at`

var sortableColumns = map[Column]bool{
	ColCreatedAt: true,
	ColDateFeed:  true,
	ColRating:    true,
	ColTitle:     true,
	ColID:        true,
}

// ArticleQuery describes one page of a filtered, sorted article listing.
type ArticleQuery struct {
	Where      Predicate
	SortBy     Column
	Descending bool
	Offset     int
	Limit      int
}

// InsertArticle inserts an article and returns its ID.
// A URL that is already stored yields ErrDuplicate.
func (db *DB) InsertArticle(ctx context.Context, a NewArticle) (int64, error) {
	return db.insertArticleAt(ctx, a, time.Now())
}

func (db *DB) insertArticleAt(ctx context.Context, a NewArticle, createdAt time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO articles (url, image_url, title, summary, rating, category, "Date_Feed", created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.URL, a.ImageURL, a.Title, a.Summary, a.Rating, a.Category, a.DateFeed, formatTime(createdAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting article: %w", classify(err))
	}
	return result.LastInsertId()
}

// ArticleExistsByURL reports whether an article with the given URL is stored.
func (db *DB) ArticleExistsByURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM articles WHERE url = ?)`, url,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking article url: %w", err)
	}
	return exists, nil
}

// GetArticleByID returns a single article or ErrNotFound.
func (db *DB) GetArticleByID(ctx context.Context, articleID int64) (*Article, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, articleID,
	)
	a, err := scanArticle(row)
	if err != nil {
		return nil, fmt.Errorf("getting article %d: %w", articleID, classify(err))
	}
	return a, nil
}

// ListArticles returns one page of articles matching q.Where together with
// the total number of matching rows. Both statements run in one
// transaction so the count describes the same snapshot as the page.
func (db *DB) ListArticles(ctx context.Context, q ArticleQuery) ([]Article, int, error) {
	if !sortableColumns[q.SortBy] {
		return nil, 0, fmt.Errorf("unsupported sort column %q", q.SortBy)
	}
	if q.Limit <= 0 {
		return nil, 0, fmt.Errorf("limit must be positive, got %d", q.Limit)
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	where, args := whereClause(q.Where)
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	orderBy := fmt.Sprintf(" ORDER BY %s %s, id %s", quote(q.SortBy), dir, dir)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin listing: %w", err)
	}
	defer tx.Rollback() //nolint: errcheck

	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset)
	rows, err := tx.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles`+where+orderBy+` LIMIT ? OFFSET ?`,
		pageArgs...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying articles: %w", err)
	}
	articles, err := scanArticles(rows)
	rows.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("scanning articles: %w", err)
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting articles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit listing: %w", err)
	}
	return articles, total, nil
}

// GetCategories returns the distinct non-empty categories in ascending order.
func (db *DB) GetCategories(ctx context.Context) ([]string, error) {
	where, args := whereClause(NotEmpty(ColCategory))
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT category FROM articles`+where+` ORDER BY category`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	articles := []Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var rating sql.NullInt64
	var createdAt string
	if err := row.Scan(&a.ID, &a.URL, &a.ImageURL, &a.Title, &a.Summary,
		&rating, &a.Category, &a.DateFeed, &createdAt); err != nil {
		return nil, err
	}
	if rating.Valid {
		r := int(rating.Int64)
		a.Rating = &r
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = t
	return &a, nil
}
