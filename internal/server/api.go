package server

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/TobiSchelling/NewsAI/internal/apperr"
	"github.com/TobiSchelling/NewsAI/internal/auth"
	"github.com/TobiSchelling/NewsAI/internal/database"
	"github.com/TobiSchelling/NewsAI/internal/listing"
	"github.com/TobiSchelling/NewsAI/internal/metrics"
)

func (s *Server) apiRecent(c echo.Context) error {
	req := listing.ParseRequest(listing.Recent, c.QueryParams())
	return s.apiList(c, req)
}

func (s *Server) apiCategory(c echo.Context) error {
	req := listing.ParseRequest(listing.Category, c.QueryParams())
	req.Category = categoryParam(c)
	return s.apiList(c, req)
}

func (s *Server) apiSearch(c echo.Context) error {
	req := listing.ParseRequest(listing.Search, c.QueryParams())
	req.Query = c.QueryParam("q")
	return s.apiList(c, req)
}

func (s *Server) apiList(c echo.Context, req listing.Request) error {
	page, err := s.listing.List(c.Request().Context(), viewer(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) apiArticle(c echo.Context) error {
	id, err := articleIDParam(c)
	if err != nil {
		return err
	}
	a, err := s.listing.Article(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (s *Server) apiCategories(c echo.Context) error {
	categories, err := s.listing.Categories(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, categories)
}

type markReadRequest struct {
	ArticleID *int64 `json:"articleId"`
}

func (s *Server) apiMarkRead(c echo.Context) error {
	id := viewer(c)
	if id == nil {
		return apperr.E(apperr.Unauthorized, "unauthorized")
	}

	var body markReadRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return apperr.Wrap(apperr.BadRequest, "invalid request body", err)
	}
	if body.ArticleID == nil {
		return apperr.E(apperr.BadRequest, "valid articleId is required")
	}

	mark, err := s.recorder.MarkRead(c.Request().Context(), id, *body.ArticleID)
	if err != nil {
		return err
	}
	metrics.ReadMarksTotal.Inc()
	return c.JSON(http.StatusOK, mark)
}

func (s *Server) apiRegister(c echo.Context) error {
	var creds auth.Credentials
	if err := (&echo.DefaultBinder{}).BindBody(c, &creds); err != nil {
		return apperr.Wrap(apperr.BadRequest, "invalid request body", err)
	}
	user, err := s.auth.Register(c.Request().Context(), creds)
	metrics.RecordAuth("register", outcome(err))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

type signInResponse struct {
	User  *database.User `json:"user"`
	Token string         `json:"token"`
}

func (s *Server) apiSignIn(c echo.Context) error {
	var creds auth.Credentials
	if err := (&echo.DefaultBinder{}).BindBody(c, &creds); err != nil {
		return apperr.Wrap(apperr.BadRequest, "invalid request body", err)
	}
	user, token, err := s.auth.SignIn(c.Request().Context(), creds)
	metrics.RecordAuth("signin", outcome(err))
	if err != nil {
		return err
	}
	s.setSessionCookie(c, token)
	return c.JSON(http.StatusOK, signInResponse{User: user, Token: token})
}

func (s *Server) apiSignOut(c echo.Context) error {
	s.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) apiSession(c echo.Context) error {
	id := viewer(c)
	if id == nil {
		return c.JSON(http.StatusOK, map[string]any{})
	}
	return c.JSON(http.StatusOK, map[string]any{"user": id})
}

func (s *Server) setSessionCookie(c echo.Context, token string) {
	ttl := s.auth.Sessions().TTL()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func articleIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.Wrap(apperr.BadRequest, "invalid article ID format", err)
	}
	return id, nil
}

func categoryParam(c echo.Context) string {
	raw := c.Param("name")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}
