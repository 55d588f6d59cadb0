package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"applydesk/internal/app"
	"applydesk/internal/domain"
	"applydesk/internal/session"
	"applydesk/internal/store"
)

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.render(w, r, sess, "account", "Account", nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.checkCSRF(w, r, sess) {
		return
	}
	profile := domain.Profile{
		Name:     r.FormValue("name"),
		Location: r.FormValue("location"),
		Website:  r.FormValue("website"),
	}
	if _, err := s.app.UpdateProfile(r.Context(), user.ID, r.FormValue("email"), profile); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			sess.AddFlash(session.FlashErrors, "That email address is already in use.")
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
		http.Redirect(w, r, "/account", http.StatusFound)
		return
	}
	sess.AddFlash(session.FlashSuccess, "Profile information has been updated.")
	s.save(r.Context(), sess)
	http.Redirect(w, r, "/account", http.StatusFound)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.checkCSRF(w, r, sess) {
		return
	}
	err := s.app.ChangePassword(r.Context(), user.ID, r.FormValue("password"), r.FormValue("confirm_password"))
	if err != nil {
		ve, ok := app.AsValidation(err)
		if !ok {
			s.serverError(w, r, err)
			return
		}
		for _, msg := range ve.Messages {
			sess.AddFlash(session.FlashErrors, msg)
		}
		s.save(r.Context(), sess)
		http.Redirect(w, r, "/account", http.StatusFound)
		return
	}
	sess.AddFlash(session.FlashSuccess, "Password has been changed.")
	s.save(r.Context(), sess)
	http.Redirect(w, r, "/account", http.StatusFound)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.checkCSRF(w, r, sess) {
		return
	}
	if err := s.app.DeleteAccount(r.Context(), user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	_ = s.sessions.Delete(r.Context(), sess.Token)
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleUnlink(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	provider := strings.TrimPrefix(r.URL.Path, "/account/unlink/")
	if provider == "" || strings.Contains(provider, "/") {
		s.notFound(w, r, sess)
		return
	}
	if _, err := s.app.UnlinkProvider(r.Context(), user.ID, provider); err != nil {
		s.serverError(w, r, err)
		return
	}
	sess.AddFlash(session.FlashInfo, fmt.Sprintf("Your %s account has been unlinked.", provider))
	s.save(r.Context(), sess)
	http.Redirect(w, r, "/account", http.StatusFound)
}
