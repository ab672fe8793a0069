package web

import (
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"chessweb/internal/service/account"
	"chessweb/internal/service/game"
	"chessweb/internal/service/session"
)

func formValue(rctx *fasthttp.RequestCtx, key string) string {
	return strings.TrimSpace(string(rctx.PostArgs().Peek(key)))
}

// requireSession resolves the logged-in user or redirects to the login page.
// Returns nil after redirecting.
func (s *Server) requireSession(rctx *fasthttp.RequestCtx) *session.Session {
	ctx, cancel := requestContext()
	defer cancel()

	sess, err := s.currentSession(ctx, rctx)
	if err != nil {
		s.internalError(rctx, "session lookup", err)
		return nil
	}
	if sess == nil {
		rctx.Redirect("/login/", fasthttp.StatusFound)
		return nil
	}
	return sess
}

func (s *Server) handleBoard(rctx *fasthttp.RequestCtx) {
	sess := s.requireSession(rctx)
	if sess == nil {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()

	page := boardPage{pageData: pageData{Title: "Chess", Username: sess.Username}}

	if rctx.IsPost() {
		if len(rctx.PostArgs().Peek("new_game")) > 0 {
			snap, err := s.games.Reset(ctx, sess.UserID)
			if err != nil {
				s.internalError(rctx, "reset board", err)
				return
			}
			page.Flash = s.messages.Render("pages.new_game", nil)
			s.fillBoard(&page, snap)
			s.renderPage(rctx, "board.gohtml", page)
			return
		}

		req := game.MoveRequest{
			Source:      formValue(rctx, "source"),
			Destination: formValue(rctx, "destination"),
			Promotion:   formValue(rctx, "promotion"),
		}
		snap, err := s.games.SubmitMove(ctx, sess.UserID, req)
		if verr, ok := game.AsValidation(err); ok {
			// Show the rejection against the board as it currently stands.
			snap, err = s.games.GetOrCreate(ctx, sess.UserID)
			if err != nil {
				s.internalError(rctx, "load board", err)
				return
			}
			page.Flash = s.messages.Render("errors."+verr.Code, map[string]any{"Turn": snap.Turn})
			page.FlashErr = true
			s.fillBoard(&page, snap)
			s.renderPage(rctx, "board.gohtml", page)
			return
		}
		if err != nil {
			s.internalError(rctx, "submit move", err)
			return
		}
		page.Flash = s.messages.Render("pages.move_applied", nil)
		s.fillBoard(&page, snap)
		s.renderPage(rctx, "board.gohtml", page)
		return
	}

	snap, err := s.games.GetOrCreate(ctx, sess.UserID)
	if err != nil {
		s.internalError(rctx, "load board", err)
		return
	}
	s.fillBoard(&page, snap)
	s.renderPage(rctx, "board.gohtml", page)
}

func (s *Server) fillBoard(page *boardPage, snap *game.Snapshot) {
	page.Board = boardRows(snap.Squares)
	page.Turn = snap.Turn
	page.MoveCount = snap.MoveCount
	page.GameOver = snap.Outcome != ""
	page.Result = resultLine(snap)
}

func (s *Server) handleHistory(rctx *fasthttp.RequestCtx) {
	sess := s.requireSession(rctx)
	if sess == nil {
		return
	}
	ctx, cancel := requestContext()
	defer cancel()

	snap, err := s.games.GetOrCreate(ctx, sess.UserID)
	if err != nil {
		s.internalError(rctx, "load board", err)
		return
	}
	moves, err := s.games.History(ctx, sess.UserID)
	if err != nil {
		s.internalError(rctx, "load history", err)
		return
	}

	s.renderPage(rctx, "history.gohtml", historyPage{
		pageData:  pageData{Title: "History", Username: sess.Username},
		GameUUID:  snap.GameUUID,
		Moves:     moves,
		MoveCount: snap.MoveCount,
		Result:    resultLine(snap),
	})
}

func (s *Server) handleStatic(rctx *fasthttp.RequestCtx, tmplName, title string) {
	ctx, cancel := requestContext()
	defer cancel()

	username := ""
	if sess, err := s.currentSession(ctx, rctx); err == nil && sess != nil {
		username = sess.Username
	}
	s.renderPage(rctx, tmplName, staticPage{pageData{Title: title, Username: username}})
}

func (s *Server) handleJoin(rctx *fasthttp.RequestCtx) {
	page := authPage{pageData: pageData{Title: "Join"}}
	if !rctx.IsPost() {
		s.renderPage(rctx, "join.gohtml", page)
		return
	}
	ctx, cancel := requestContext()
	defer cancel()

	req := account.RegisterRequest{
		Username:  formValue(rctx, "username"),
		Email:     formValue(rctx, "email"),
		FirstName: formValue(rctx, "first_name"),
		LastName:  formValue(rctx, "last_name"),
		Password:  string(rctx.PostArgs().Peek("password")),
	}
	_, err := s.accounts.Register(ctx, req)
	if err != nil {
		page.FormUsername = req.Username
		page.FormEmail = req.Email
		page.FormFirst = req.FirstName
		page.FormLast = req.LastName
		switch {
		case errors.Is(err, account.ErrUsernameRequired):
			page.Error = s.messages.Render("errors.username_required", nil)
		case errors.Is(err, account.ErrUsernameTaken):
			page.Error = s.messages.Render("errors.username_taken", nil)
		case errors.Is(err, account.ErrPasswordTooShort):
			page.Error = s.messages.Render("errors.password_too_short", map[string]any{"Min": account.MinPasswordLength})
		default:
			s.internalError(rctx, "register", err)
			return
		}
		s.renderPage(rctx, "join.gohtml", page)
		return
	}
	s.logger.Info("account created", zap.String("username", strings.ToLower(req.Username)))
	rctx.Redirect("/login/", fasthttp.StatusFound)
}

func (s *Server) handleLogin(rctx *fasthttp.RequestCtx) {
	page := authPage{pageData: pageData{Title: "Log in"}}
	if !rctx.IsPost() {
		s.renderPage(rctx, "login.gohtml", page)
		return
	}
	ctx, cancel := requestContext()
	defer cancel()

	username := formValue(rctx, "username")
	password := string(rctx.PostArgs().Peek("password"))

	user, err := s.accounts.Authenticate(ctx, username, password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		page.Error = s.messages.Render("errors.login_failed", nil)
		page.FormUsername = username
		s.renderPage(rctx, "login.gohtml", page)
		return
	}
	if err != nil {
		s.internalError(rctx, "authenticate", err)
		return
	}

	sess, err := s.sessions.Create(ctx, user)
	if err != nil {
		s.internalError(rctx, "create session", err)
		return
	}
	s.setSessionCookie(rctx, sess.Token)
	s.logger.Info("user logged in", zap.String("username", user.Username))
	rctx.Redirect("/", fasthttp.StatusFound)
}

func (s *Server) handleLogout(rctx *fasthttp.RequestCtx) {
	ctx, cancel := requestContext()
	defer cancel()

	token := string(rctx.Request.Header.Cookie(s.cfg.CookieName))
	if token != "" {
		if err := s.sessions.Delete(ctx, token); err != nil {
			s.logger.Warn("session delete failed", zap.Error(err))
		}
	}
	s.clearSessionCookie(rctx)
	rctx.Redirect("/login/", fasthttp.StatusFound)
}
