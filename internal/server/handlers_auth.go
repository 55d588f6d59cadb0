package server

import (
	"errors"
	"net/http"
	"strings"

	"applydesk/internal/app"
	"applydesk/internal/session"
	"applydesk/internal/store"
	"applydesk/internal/util"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if sess.LoggedIn() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		s.render(w, r, sess, "login", "Login", nil)
	case http.MethodPost:
		if !s.allow(s.loginLimiter, "login", w, r) {
			return
		}
		if !s.checkCSRF(w, r, sess) {
			return
		}
		u, err := s.app.Login(r.Context(), r.FormValue("email"), r.FormValue("password"))
		if err != nil {
			if !errors.Is(err, app.ErrInvalidCredentials) {
				s.serverError(w, r, err)
				return
			}
			sess.AddFlash(session.FlashErrors, "Invalid email or password.")
			s.save(r.Context(), sess)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		sess.UserID = u.ID
		sess.AddFlash(session.FlashSuccess, "Success! You are logged in.")
		s.redirectAfterLogin(w, r, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if err := s.sessions.Delete(r.Context(), c.Value); err != nil {
			util.LoggerFromContext(r.Context()).Error("delete session failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if sess.LoggedIn() {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		s.render(w, r, sess, "signup", "Sign Up", map[string]any{"OrgID": s.defaultOrgID})
	case http.MethodPost:
		if !s.allow(s.loginLimiter, "signup", w, r) {
			return
		}
		if !s.checkCSRF(w, r, sess) {
			return
		}
		u, err := s.app.Signup(r.Context(),
			r.FormValue("email"),
			r.FormValue("password"),
			r.FormValue("confirm_password"),
			r.FormValue("org_id"),
		)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicateEmail):
				sess.AddFlash(session.FlashErrors, "Account with that email address already exists.")
			default:
				ve, ok := app.AsValidation(err)
				if !ok {
					s.serverError(w, r, err)
					return
				}
				for _, msg := range ve.Messages {
					sess.AddFlash(session.FlashErrors, msg)
				}
			}
			s.save(r.Context(), sess)
			http.Redirect(w, r, "/signup", http.StatusFound)
			return
		}
		sess.UserID = u.ID
		s.redirectAfterLogin(w, r, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, sess, "forgot", "Forgot Password", nil)
	case http.MethodPost:
		if !s.allow(s.resetLimiter, "forgot", w, r) {
			return
		}
		if !s.checkCSRF(w, r, sess) {
			return
		}
		if err := s.app.RequestPasswordReset(r.Context(), r.FormValue("email")); err != nil {
			util.LoggerFromContext(r.Context()).Error("password reset request failed", "error", err)
			sess.AddFlash(session.FlashErrors, "Could not send the reset email. Try again later.")
		} else {
			// Identical message whether or not the address has an account.
			sess.AddFlash(session.FlashInfo, "If an account with that address exists, an email has been sent with further instructions.")
		}
		s.save(r.Context(), sess)
		http.Redirect(w, r, "/forgot", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/reset/")
	if token == "" || strings.Contains(token, "/") {
		s.notFound(w, r, sess)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.render(w, r, sess, "reset", "Reset Password", map[string]any{"Token": token})
	case http.MethodPost:
		if !s.checkCSRF(w, r, sess) {
			return
		}
		u, err := s.app.ResetPassword(r.Context(), token, r.FormValue("password"), r.FormValue("confirm_password"))
		if err != nil {
			if errors.Is(err, app.ErrInvalidToken) {
				sess.AddFlash(session.FlashErrors, "Password reset token is invalid or has expired.")
				s.save(r.Context(), sess)
				http.Redirect(w, r, "/forgot", http.StatusFound)
				return
			}
			if ve, ok := app.AsValidation(err); ok {
				for _, msg := range ve.Messages {
					sess.AddFlash(session.FlashErrors, msg)
				}
				s.save(r.Context(), sess)
				http.Redirect(w, r, r.URL.Path, http.StatusFound)
				return
			}
			s.serverError(w, r, err)
			return
		}
		sess.UserID = u.ID
		sess.AddFlash(session.FlashSuccess, "Success! Your password has been changed.")
		s.save(r.Context(), sess)
		http.Redirect(w, r, "/", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
