package api

import (
	"errors"
	"net/http"

	"github.com/polygonid/verifier-node/internal/theme"
)

// GetTheme returns the theme state. The remote theme of the account query param is fetched the first time.
func (s *Server) GetTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if account := r.URL.Query().Get("account"); account != "" {
		s.themes.Load(ctx, account)
	}
	writeJSON(ctx, w, http.StatusOK, themeResponse(s.themes))
}

// UpdateTheme selects the mode of an account
func (s *Server) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body ThemeRequest
	if err := decode(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Mode == nil {
		writeError(ctx, w, http.StatusBadRequest, "mode is required")
		return
	}
	if err := s.themes.Switch(ctx, body.Account, *body.Mode); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, theme.ErrInvalidMode) {
			status = http.StatusBadRequest
		}
		writeError(ctx, w, status, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, themeResponse(s.themes))
}

// UpdateSystemTheme records the theme of the device
func (s *Server) UpdateSystemTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body SystemThemeRequest
	if err := decode(r, &body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Mode == nil {
		writeError(ctx, w, http.StatusBadRequest, "mode is required")
		return
	}
	if err := s.themes.SetSystemTheme(*body.Mode); err != nil {
		writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, w, http.StatusOK, themeResponse(s.themes))
}
