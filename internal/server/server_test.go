package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/database"
	"github.com/TobiSchelling/NewsAI/internal/listing"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func newTestServer(t *testing.T, db *database.DB, opts Options) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions, err := auth.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	srv, err := New(Deps{
		Listing:  listing.NewService(db, log),
		Recorder: listing.NewRecorder(db, log),
		Auth:     auth.NewService(db, sessions, log),
		Health:   db.Ping,
		Log:      log,
	}, opts)
	require.NoError(t, err)
	return srv
}

func seedArticles(t *testing.T, db *database.DB, n, rating int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := db.InsertArticle(context.Background(), database.NewArticle{
			URL:      fmt.Sprintf("https://example.com/%d-%d", rating, i),
			Title:    ptr(fmt.Sprintf("Article %d", i)),
			Summary:  ptr("Summary text"),
			Rating:   ptr(rating),
			Category: ptr("Research"),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

type listingBody struct {
	Articles    []database.Article `json:"articles"`
	TotalCount  int                `json:"totalCount"`
	TotalPages  int                `json:"totalPages"`
	CurrentPage int                `json:"currentPage"`
	Limit       int                `json:"limit"`
}

func do(t *testing.T, srv *Server, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, srv *Server, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", sessionCookie)
	return nil
}

func signUp(t *testing.T, srv *Server, name string) *http.Cookie {
	t.Helper()
	creds := map[string]string{"name": name, "password": "secret1"}
	rec := do(t, srv, http.MethodPost, "/api/auth/register", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodPost, "/api/auth/signin", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookieFrom(t, rec)
}

func TestAPIRecentPagination(t *testing.T) {
	db := openTestDB(t)
	seedArticles(t, db, 20, 7)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/api/articles?rating=6&page=1&limit=15", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[listingBody](t, rec)
	assert.Equal(t, 20, body.TotalCount)
	assert.Equal(t, 2, body.TotalPages)
	assert.Len(t, body.Articles, 15)
	assert.Equal(t, 1, body.CurrentPage)
	assert.Equal(t, 15, body.Limit)
}

func TestAPIPageBeyondRangeIsEmptyArray(t *testing.T) {
	db := openTestDB(t)
	seedArticles(t, db, 3, 7)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/api/articles?page=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"articles":[]`)
	assert.Equal(t, 3, decode[listingBody](t, rec).TotalCount)
}

func TestAPIRecentFiltersByRating(t *testing.T) {
	db := openTestDB(t)
	seedArticles(t, db, 2, 4)
	seedArticles(t, db, 3, 8)
	srv := newTestServer(t, db, Options{})

	body := decode[listingBody](t, do(t, srv, http.MethodGet, "/api/articles", nil))
	assert.Equal(t, 3, body.TotalCount, "default minimum rating is 6")

	body = decode[listingBody](t, do(t, srv, http.MethodGet, "/api/articles?rating=0&sortBy=nonsense", nil))
	assert.Equal(t, 5, body.TotalCount)
}

func TestAPICategory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.InsertArticle(ctx, database.NewArticle{URL: "https://a.com", Category: ptr("AI Research")})
	require.NoError(t, err)
	_, err = db.InsertArticle(ctx, database.NewArticle{URL: "https://b.com", Category: ptr("Hardware")})
	require.NoError(t, err)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/api/articles/category/AI%20Research", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[listingBody](t, rec)
	require.Len(t, body.Articles, 1)
	assert.Equal(t, "AI Research", *body.Articles[0].Category)
}

func TestAPIArticle(t *testing.T) {
	db := openTestDB(t)
	ids := seedArticles(t, db, 1, 7)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/api/articles/%d", ids[0]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a := decode[database.Article](t, rec)
	assert.Equal(t, ids[0], a.ID)
	assert.Equal(t, "Article 0", *a.Title)

	rec = do(t, srv, http.MethodGet, "/api/articles/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid article ID format", decode[map[string]string](t, rec)["error"])

	rec = do(t, srv, http.MethodGet, "/api/articles/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "article not found", decode[map[string]string](t, rec)["error"])
}

func TestAPISearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.InsertArticle(ctx, database.NewArticle{URL: "https://a.com", Title: ptr("Gemini update")})
	require.NoError(t, err)
	_, err = db.InsertArticle(ctx, database.NewArticle{URL: "https://b.com", Title: ptr("Other"), Summary: ptr("about Gemini")})
	require.NoError(t, err)
	_, err = db.InsertArticle(ctx, database.NewArticle{URL: "https://c.com", Title: ptr("gemini lowercase")})
	require.NoError(t, err)
	srv := newTestServer(t, db, Options{})

	body := decode[listingBody](t, do(t, srv, http.MethodGet, "/api/search?q=Gemini", nil))
	assert.Equal(t, 2, body.TotalCount)

	rec := do(t, srv, http.MethodGet, "/api/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "search query is required", decode[map[string]string](t, rec)["error"])
}

func TestAPICategories(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	seedArticles(t, db, 1, 7)
	rec = do(t, srv, http.MethodGet, "/api/categories", nil)
	assert.JSONEq(t, `["Research"]`, rec.Body.String())
}

func TestAPIRegister(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodPost, "/api/auth/register", map[string]string{"name": "alice", "password": "123456"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", user["name"])
	assert.NotEmpty(t, user["id"])
	assert.Contains(t, user, "createdAt")
	assert.NotContains(t, user, "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")

	rec = do(t, srv, http.MethodPost, "/api/auth/register", map[string]string{"name": "alice", "password": "123456"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/auth/register", map[string]string{"name": "bob", "password": "12345"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/auth/register", map[string]string{"name": "bob"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPISignIn(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{})
	cookie := signUp(t, srv, "alice")
	assert.True(t, cookie.HttpOnly)

	rec := do(t, srv, http.MethodGet, "/api/auth/session", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"alice"`)

	rec = do(t, srv, http.MethodGet, "/api/auth/session", nil)
	assert.JSONEq(t, `{}`, rec.Body.String())

	wrong := do(t, srv, http.MethodPost, "/api/auth/signin", map[string]string{"name": "alice", "password": "wrong-password"})
	unknown := do(t, srv, http.MethodPost, "/api/auth/signin", map[string]string{"name": "nobody", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
}

func TestAPIMarkReadAndFilter(t *testing.T) {
	db := openTestDB(t)
	ids := seedArticles(t, db, 3, 7)
	srv := newTestServer(t, db, Options{})
	cookie := signUp(t, srv, "alice")

	rec := do(t, srv, http.MethodPost, "/api/articles/read", map[string]int64{"articleId": ids[0]}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mark := decode[map[string]any](t, rec)
	assert.EqualValues(t, ids[0], mark["articleId"])

	rec = do(t, srv, http.MethodPost, "/api/articles/read", map[string]int64{"articleId": ids[0]}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, "marking twice is fine")

	body := decode[listingBody](t, do(t, srv, http.MethodGet, "/api/articles", nil, cookie))
	assert.Equal(t, 2, body.TotalCount)
	for _, a := range body.Articles {
		assert.NotEqual(t, ids[0], a.ID)
	}

	body = decode[listingBody](t, do(t, srv, http.MethodGet, "/api/articles?includeRead=true", nil, cookie))
	assert.Equal(t, 3, body.TotalCount)

	body = decode[listingBody](t, do(t, srv, http.MethodGet, "/api/articles", nil))
	assert.Equal(t, 3, body.TotalCount, "anonymous listings are not filtered")
}

func TestAPIMarkReadErrors(t *testing.T) {
	db := openTestDB(t)
	seedArticles(t, db, 1, 7)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodPost, "/api/articles/read", map[string]int64{"articleId": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := signUp(t, srv, "alice")

	rec = do(t, srv, http.MethodPost, "/api/articles/read", map[string]int64{"articleId": 424242}, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "article with ID 424242 not found", decode[map[string]string](t, rec)["error"])

	rec = do(t, srv, http.MethodPost, "/api/articles/read", map[string]string{"articleId": "one"}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/articles/read", map[string]string{}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIBearerToken(t *testing.T) {
	db := openTestDB(t)
	ids := seedArticles(t, db, 1, 7)
	srv := newTestServer(t, db, Options{})
	cookie := signUp(t, srv, "alice")

	req := httptest.NewRequest(http.MethodPost, "/api/articles/read", strings.NewReader(fmt.Sprintf(`{"articleId":%d}`, ids[0])))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimit(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{AuthRatePerMinute: 2})

	creds := map[string]string{"name": "nobody", "password": "secret1"}
	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodPost, "/api/auth/signin", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := do(t, srv, http.MethodPost, "/api/auth/signin", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHealthz(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{})
	do(t, srv, http.MethodGet, "/api/categories", nil)

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "newsai_http_requests_total")
}

func TestIndexPage(t *testing.T) {
	db := openTestDB(t)
	seedArticles(t, db, 20, 7)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Latest articles")
	assert.Contains(t, body, "Article 19")
	assert.Contains(t, body, "page=2", "next page link")
	assert.Contains(t, body, "/articles/category/Research")
}

func TestArticlePageSanitizesSummary(t *testing.T) {
	db := openTestDB(t)
	id, err := db.InsertArticle(context.Background(), database.NewArticle{
		URL:     "https://example.com/x",
		Title:   ptr("Risky"),
		Summary: ptr("**bold** <script>alert(1)</script>"),
	})
	require.NoError(t, err)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/articles/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<strong>bold</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
}

func TestPageErrors(t *testing.T) {
	db := openTestDB(t)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/articles/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = do(t, srv, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestCategoriesAndSearchPages(t *testing.T) {
	db := openTestDB(t)
	seedArticles(t, db, 2, 7)
	srv := newTestServer(t, db, Options{})

	rec := do(t, srv, http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Research")

	rec = do(t, srv, http.MethodGet, "/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter a word")

	rec = do(t, srv, http.MethodGet, "/search?q=Article", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Article 1")
}

func TestFormSignInAndMarkRead(t *testing.T) {
	db := openTestDB(t)
	ids := seedArticles(t, db, 1, 7)
	srv := newTestServer(t, db, Options{})

	rec := postForm(t, srv, fmt.Sprintf("/articles/%d/read", ids[0]), url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/signin"))

	rec = postForm(t, srv, "/auth/register", url.Values{"name": {"alice"}, "password": {"short"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "at least 6 characters")

	rec = postForm(t, srv, "/auth/register", url.Values{"name": {"alice"}, "password": {"secret1"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = postForm(t, srv, "/auth/signin", url.Values{
		"name":     {"alice"},
		"password": {"secret1"},
		"next":     {"https://evil.example/"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookie := sessionCookieFrom(t, rec)

	rec = postForm(t, srv, fmt.Sprintf("/articles/%d/read", ids[0]), url.Values{}, cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, fmt.Sprintf("/articles/%d?read=1", ids[0]), rec.Header().Get("Location"))

	marks, err := db.GetReadMarks(context.Background(), decodeSubject(t, srv, cookie))
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func decodeSubject(t *testing.T, srv *Server, cookie *http.Cookie) string {
	t.Helper()
	id, err := srv.auth.Authenticate(cookie.Value)
	require.NoError(t, err)
	return id.ID
}

func TestSafeNext(t *testing.T) {
	assert.Equal(t, "/articles/3", safeNext("/articles/3", "/"))
	assert.Equal(t, "/", safeNext("//evil.example", "/"))
	assert.Equal(t, "/", safeNext("https://evil.example", "/"))
	assert.Equal(t, "/", safeNext("", "/"))
}
