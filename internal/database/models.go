package database

import (
	"fmt"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp column,
// so lexical and chronological order agree.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Article is a curated article. Every content column is nullable because
// rows come from an ingestion process that may leave fields empty.
type Article struct {
	ID        int64     `json:"id"`
	URL       *string   `json:"url"`
	ImageURL  *string   `json:"image_url"`
	Title     *string   `json:"title"`
	Summary   *string   `json:"summary"`
	Rating    *int      `json:"rating"`
	Category  *string   `json:"category"`
	DateFeed  *string   `json:"Date_Feed"`
	CreatedAt time.Time `json:"created_at"`
}

// NewArticle holds the columns written by ingestion.
type NewArticle struct {
	URL      string
	ImageURL *string
	Title    *string
	Summary  *string
	Rating   *int
	Category *string
	DateFeed *string
}

// User is a registered account. PasswordHash never leaves the process.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ReadMark records that a user has read an article.
type ReadMark struct {
	UserID    string    `json:"userId"`
	ArticleID int64     `json:"articleId"`
	ReadAt    time.Time `json:"read_at"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	Articles       int
	Categories     int
	Users          int
	ReadMarks      int
	LastIngestedAt *string
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		// Rows written by other tools may carry plain RFC 3339.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
