package web

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"chessweb/internal/config"
	"chessweb/internal/msgcat"
	"chessweb/internal/service/account"
	"chessweb/internal/service/game"
	"chessweb/internal/service/session"
)

const requestTimeout = 5 * time.Second

// Server is the HTML front of the site: one handler per page, form posts
// for every mutation, session cookie for identity.
type Server struct {
	cfg      *config.AppConfig
	accounts *account.Service
	games    *game.Service
	sessions session.Store
	messages *msgcat.Catalog
	tmpl     *template.Template
	logger   *zap.Logger
	srv      *fasthttp.Server
}

func New(
	cfg *config.AppConfig,
	accounts *account.Service,
	games *game.Service,
	sessions session.Store,
	messages *msgcat.Catalog,
	logger *zap.Logger,
) (*Server, error) {
	if cfg == nil || accounts == nil || games == nil || sessions == nil || messages == nil {
		return nil, fmt.Errorf("web server dependencies are incomplete")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		accounts: accounts,
		games:    games,
		sessions: sessions,
		messages: messages,
		tmpl:     tmpl,
		logger:   logger,
	}
	s.srv = &fasthttp.Server{
		Handler:      s.handle,
		Name:         "chessweb",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.ListenAddr))
	return s.srv.ListenAndServe(s.cfg.ListenAddr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.ShutdownWithContext(ctx)
}

func (s *Server) handle(rctx *fasthttp.RequestCtx) {
	path := string(rctx.Path())
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	switch path {
	case "/":
		s.handleBoard(rctx)
	case "/history":
		s.handleHistory(rctx)
	case "/rules":
		s.handleStatic(rctx, "rules.gohtml", "Rules")
	case "/about":
		s.handleStatic(rctx, "about.gohtml", "About")
	case "/join":
		s.handleJoin(rctx)
	case "/login":
		s.handleLogin(rctx)
	case "/logout":
		s.handleLogout(rctx)
	default:
		rctx.Error("page not found", fasthttp.StatusNotFound)
	}
}

// currentSession resolves the login cookie; (nil, nil) means anonymous.
func (s *Server) currentSession(ctx context.Context, rctx *fasthttp.RequestCtx) (*session.Session, error) {
	token := string(rctx.Request.Header.Cookie(s.cfg.CookieName))
	if token == "" {
		return nil, nil
	}
	return s.sessions.Lookup(ctx, token)
}

func (s *Server) setSessionCookie(rctx *fasthttp.RequestCtx, token string) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(s.cfg.CookieName)
	c.SetValue(token)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(s.cfg.CookieSecure)
	c.SetMaxAge(s.cfg.SessionTTLSec)
	rctx.Response.Header.SetCookie(c)
}

func (s *Server) clearSessionCookie(rctx *fasthttp.RequestCtx) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(s.cfg.CookieName)
	c.SetValue("")
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(s.cfg.CookieSecure)
	c.SetMaxAge(-1)
	rctx.Response.Header.SetCookie(c)
}

func (s *Server) renderPage(rctx *fasthttp.RequestCtx, name string, data any) {
	body, err := s.render(name, data)
	if err != nil {
		s.logger.Error("template render failed", zap.String("template", name), zap.Error(err))
		rctx.Error("internal error", fasthttp.StatusInternalServerError)
		return
	}
	rctx.SetContentType("text/html; charset=utf-8")
	rctx.SetStatusCode(fasthttp.StatusOK)
	rctx.SetBody(body)
}

func (s *Server) internalError(rctx *fasthttp.RequestCtx, op string, err error) {
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
	rctx.Error(s.messages.Render("errors.internal", nil), fasthttp.StatusInternalServerError)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
