package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/listing"
	"github.com/TobiSchelling/NewsAI/internal/metrics"
)

// pageData adds the values every page needs to data.
func (s *Server) pageData(c echo.Context, data map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}
	data["Viewer"] = viewer(c)
	data["SearchQuery"] = c.QueryParam("q")
	return data
}

func (s *Server) pageRecent(c echo.Context) error {
	req := listing.ParseRequest(listing.Recent, c.QueryParams())
	return s.renderListing(c, req, "Latest articles")
}

func (s *Server) pageCategory(c echo.Context) error {
	req := listing.ParseRequest(listing.Category, c.QueryParams())
	req.Category = categoryParam(c)
	return s.renderListing(c, req, req.Category)
}

func (s *Server) pageSearch(c echo.Context) error {
	req := listing.ParseRequest(listing.Search, c.QueryParams())
	req.Query = strings.TrimSpace(c.QueryParam("q"))
	if req.Query == "" {
		return c.Render(http.StatusOK, "articles.html", s.pageData(c, map[string]any{
			"Heading": "Search",
			"Hint":    "Enter a word to search titles and summaries.",
		}))
	}
	return s.renderListing(c, req, fmt.Sprintf("Results for %q", req.Query))
}

func (s *Server) renderListing(c echo.Context, req listing.Request, heading string) error {
	page, err := s.listing.List(c.Request().Context(), viewer(c), req)
	if err != nil {
		return err
	}

	q := c.QueryParams()
	data := map[string]any{
		"Heading":     heading,
		"Page":        page,
		"IncludeRead": req.IncludeRead,
		"ToggleRead":  withParam(c.Request().URL.Path, q, "includeRead", strconv.FormatBool(!req.IncludeRead), "page"),
	}
	if page.CurrentPage > 1 {
		data["PrevURL"] = withParam(c.Request().URL.Path, q, "page", strconv.Itoa(page.CurrentPage-1))
	}
	if page.CurrentPage < page.TotalPages {
		data["NextURL"] = withParam(c.Request().URL.Path, q, "page", strconv.Itoa(page.CurrentPage+1))
	}
	return c.Render(http.StatusOK, "articles.html", s.pageData(c, data))
}

// withParam returns path with q, key set to value and any drop keys removed.
func withParam(path string, q url.Values, key, value string, drop ...string) string {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set(key, value)
	for _, k := range drop {
		out.Del(k)
	}
	return path + "?" + out.Encode()
}

func (s *Server) pageArticle(c echo.Context) error {
	id, err := articleIDParam(c)
	if err != nil {
		return err
	}
	a, err := s.listing.Article(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "article.html", s.pageData(c, map[string]any{
		"Article":  a,
		"JustRead": c.QueryParam("read") == "1",
	}))
}

func (s *Server) pageMarkRead(c echo.Context) error {
	id, err := articleIDParam(c)
	if err != nil {
		return err
	}
	who := viewer(c)
	if who == nil {
		return c.Redirect(http.StatusSeeOther, "/auth/signin?next="+url.QueryEscape(fmt.Sprintf("/articles/%d", id)))
	}
	if _, err := s.recorder.MarkRead(c.Request().Context(), who, id); err != nil {
		return err
	}
	metrics.ReadMarksTotal.Inc()
	return c.Redirect(http.StatusSeeOther, safeNext(c.FormValue("next"), fmt.Sprintf("/articles/%d?read=1", id)))
}

func (s *Server) pageCategories(c echo.Context) error {
	categories, err := s.listing.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "categories.html", s.pageData(c, map[string]any{
		"Categories": categories,
	}))
}

func (s *Server) pageSignIn(c echo.Context) error {
	return c.Render(http.StatusOK, "signin.html", s.pageData(c, map[string]any{
		"Next":       c.QueryParam("next"),
		"Registered": c.QueryParam("registered") == "1",
	}))
}

func (s *Server) pageSignInSubmit(c echo.Context) error {
	creds := auth.Credentials{Name: c.FormValue("name"), Password: c.FormValue("password")}
	next := c.FormValue("next")

	_, token, err := s.auth.SignIn(c.Request().Context(), creds)
	metrics.RecordAuth("signin", outcome(err))
	if err != nil {
		return s.renderFormError(c, "signin.html", err, map[string]any{"Name": creds.Name, "Next": next})
	}
	s.setSessionCookie(c, token)
	return c.Redirect(http.StatusSeeOther, safeNext(next, "/"))
}

func (s *Server) pageRegister(c echo.Context) error {
	return c.Render(http.StatusOK, "register.html", s.pageData(c, nil))
}

func (s *Server) pageRegisterSubmit(c echo.Context) error {
	creds := auth.Credentials{Name: c.FormValue("name"), Password: c.FormValue("password")}

	_, err := s.auth.Register(c.Request().Context(), creds)
	metrics.RecordAuth("register", outcome(err))
	if err != nil {
		return s.renderFormError(c, "register.html", err, map[string]any{"Name": creds.Name})
	}
	return c.Redirect(http.StatusSeeOther, "/auth/signin?registered=1")
}

func (s *Server) pageSignOut(c echo.Context) error {
	s.clearSessionCookie(c)
	return c.Redirect(http.StatusSeeOther, "/")
}

// renderFormError re-renders a form with the client-facing message for
// err. Internal failures go to the error handler instead.
func (s *Server) renderFormError(c echo.Context, page string, err error, data map[string]any) error {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		return err
	}
	data["Error"] = apperr.PublicMessage(err)
	return c.Render(kind.HTTPStatus(), page, s.pageData(c, data))
}

// safeNext accepts only same-site absolute paths as redirect targets.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
