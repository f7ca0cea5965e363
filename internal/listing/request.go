package listing

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/TobiSchelling/NewsAI/internal/database"
)

const (
	DefaultPage      = 1
	DefaultLimit     = 15
	DefaultMinRating = 6
)

// Variant selects the base filter of a listing.
type Variant int

const (
	Recent Variant = iota
	Category
	Search
)

func (v Variant) String() string {
	switch v {
	case Category:
		return "category"
	case Search:
		return "search"
	default:
		return "recent"
	}
}

// Request is a listing request after parsing. Page and Limit are always
// positive; SortBy and Order may be empty or invalid and are resolved
// against the variant defaults.
type Request struct {
	Variant     Variant
	Page        int
	Limit       int
	SortBy      string
	Order       string
	IncludeRead bool

	MinRating int    // Recent
	Category  string // Category
	Query     string // Search
}

// ParseRequest reads page, limit, sortBy, order, includeRead and rating
// from query parameters. Missing or malformed numbers use the defaults.
// Category and Query are left to the caller.
func ParseRequest(v Variant, q url.Values) Request {
	return Request{
		Variant:     v,
		Page:        positiveInt(q.Get("page"), DefaultPage),
		Limit:       positiveInt(q.Get("limit"), DefaultLimit),
		SortBy:      q.Get("sortBy"),
		Order:       q.Get("order"),
		IncludeRead: q.Get("includeRead") == "true",
		MinRating:   intOr(q.Get("rating"), DefaultMinRating),
	}
}

func positiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func intOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

var sortColumns = map[string]database.Column{
	"created_at": database.ColCreatedAt,
	"Date_Feed":  database.ColDateFeed,
	"rating":     database.ColRating,
	"title":      database.ColTitle,
}

type sortDefault struct {
	col  database.Column
	desc bool
}

var variantSort = map[Variant]sortDefault{
	Recent:   {database.ColCreatedAt, true},
	Category: {database.ColDateFeed, false},
	Search:   {database.ColCreatedAt, true},
}

// resolveSort applies the allow-list; anything unknown falls back to
// the variant default without error.
func (r Request) resolveSort() (database.Column, bool) {
	def := variantSort[r.Variant]
	col, ok := sortColumns[r.SortBy]
	if !ok {
		col = def.col
	}
	desc := def.desc
	switch r.Order {
	case "asc":
		desc = false
	case "desc":
		desc = true
	}
	return col, desc
}

func (r Request) basePredicate() database.Predicate {
	switch r.Variant {
	case Category:
		return database.Eq(database.ColCategory, r.Category)
	case Search:
		return database.Or(
			database.Contains(database.ColTitle, r.Query),
			database.Contains(database.ColSummary, r.Query),
		)
	default:
		return database.Gte(database.ColRating, r.MinRating)
	}
}
