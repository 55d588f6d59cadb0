package server

import (
	"errors"
	"io"
	"net/http"

	"applydesk/internal/app"
	"applydesk/internal/domain"
	"applydesk/internal/session"
	"applydesk/internal/util"
)

const maxUploadBytes = 10 << 20

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		sess, err := s.session(w, r)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		s.notFound(w, r, sess)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.requireLogin(s.handleHome)(w, r)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	hits, err := s.app.Applications(r.Context(), user.OrgID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("browse failed", "error", err, "org_id", user.OrgID)
		sess.AddFlash(session.FlashErrors, "Applications are temporarily unavailable.")
		hits = nil
	}
	s.render(w, r, sess, "home", "Applications", map[string]any{"Hits": hits})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query().Get("query")
	hits, err := s.app.SearchApplications(r.Context(), user.OrgID, query)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("search failed", "error", err, "org_id", user.OrgID)
		sess.AddFlash(session.FlashErrors, "Search is temporarily unavailable.")
		hits = nil
	}
	s.render(w, r, sess, "search", "Search", map[string]any{"Hits": hits, "Query": query})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		orgID := r.URL.Query().Get("org_id")
		if orgID == "" {
			orgID = s.defaultOrgID
		}
		s.render(w, r, sess, "apply", "Apply", map[string]any{
			"OrgID":      orgID,
			"PositionID": r.URL.Query().Get("position_id"),
		})
	case http.MethodPost:
		s.handleApplySubmit(w, r, sess)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleApplySubmit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !s.allow(s.applyLimiter, "apply", w, r) {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			sess.AddFlash(session.FlashErrors, "Could not read your submission.")
			s.save(r.Context(), sess)
			http.Redirect(w, r, "/apply", http.StatusFound)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
	}
	if !s.checkCSRF(w, r, sess) {
		return
	}

	sub := app.Submission{
		Name:       r.FormValue("name"),
		Email:      r.FormValue("email"),
		Resume:     r.FormValue("resume"),
		PositionID: r.FormValue("position_id"),
		OrgID:      r.FormValue("org_id"),
	}
	if f, hdr, err := r.FormFile("resume_file"); err == nil {
		data, readErr := io.ReadAll(f)
		f.Close()
		if readErr != nil {
			sess.AddFlash(session.FlashErrors, "There was a problem reading your attachment.")
			s.save(r.Context(), sess)
			http.Redirect(w, r, "/apply", http.StatusFound)
			return
		}
		sub.FileName = hdr.Filename
		sub.FileData = data
		sub.FileType = hdr.Header.Get("Content-Type")
	}

	if err := s.app.SubmitApplication(r.Context(), sub); err != nil {
		if ve, ok := app.AsValidation(err); ok {
			for _, msg := range ve.Messages {
				sess.AddFlash(session.FlashErrors, msg)
			}
			s.save(r.Context(), sess)
			http.Redirect(w, r, "/apply", http.StatusFound)
			return
		}
		s.serverError(w, r, err)
		return
	}
	sess.AddFlash(session.FlashSuccess, "Your application has been submitted.")
	s.save(r.Context(), sess)
	http.Redirect(w, r, "/apply", http.StatusFound)
}

func (s *Server) handleNewRole(w http.ResponseWriter, r *http.Request, sess *session.Session, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		positions, err := s.app.ListPositions(r.Context(), user.OrgID)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		s.render(w, r, sess, "newrole", "New Role", map[string]any{"Positions": positions})
	case http.MethodPost:
		if !s.checkCSRF(w, r, sess) {
			return
		}
		_, err := s.app.CreatePosition(r.Context(), user.OrgID, r.FormValue("title"), r.FormValue("starting_date"))
		if err != nil {
			if ve, ok := app.AsValidation(err); ok {
				for _, msg := range ve.Messages {
					sess.AddFlash(session.FlashErrors, msg)
				}
				s.save(r.Context(), sess)
				http.Redirect(w, r, "/newrole", http.StatusFound)
				return
			}
			s.serverError(w, r, err)
			return
		}
		sess.AddFlash(session.FlashSuccess, "New role created.")
		s.save(r.Context(), sess)
		http.Redirect(w, r, "/newrole", http.StatusFound)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
