package admin

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/engine"
	"github.com/fvkry/custody/pkg/gate"
	"github.com/fvkry/custody/pkg/mapping"
	"github.com/go-chi/chi/v5"
)

// AdminHandler serves the administrator-only pause and blacklist operations.
type AdminHandler struct {
	Engine *engine.Engine
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(e *engine.Engine) *AdminHandler {
	return &AdminHandler{Engine: e}
}

// Pause handles POST /admin/pause.
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Pause(r.Context(), caller); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unpause handles POST /admin/unpause.
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return
	}
	if err := h.Engine.Unpause(r.Context(), caller); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Blacklist handles POST /admin/blacklist/{token}.
func (h *AdminHandler) Blacklist(w http.ResponseWriter, r *http.Request) {
	caller, token, ok := callerAndToken(w, r)
	if !ok {
		return
	}
	if err := h.Engine.BlacklistToken(r.Context(), caller, token); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unblacklist handles DELETE /admin/blacklist/{token}.
func (h *AdminHandler) Unblacklist(w http.ResponseWriter, r *http.Request) {
	caller, token, ok := callerAndToken(w, r)
	if !ok {
		return
	}
	if err := h.Engine.UnblacklistToken(r.Context(), caller, token); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func callerAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, err := mapping.CallerFromRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid caller address: %v", err), http.StatusBadRequest)
		return common.Address{}, false
	}
	return caller, true
}

func callerAndToken(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, bool) {
	caller, ok := callerAddress(w, r)
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	token, err := mapping.ParseAddress(chi.URLParam(r, "token"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid token address: %v", err), http.StatusBadRequest)
		return common.Address{}, common.Address{}, false
	}
	return caller, token, true
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gate.ErrNotAdministrator):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, engine.ErrZeroTokenAddress):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, gate.ErrAlreadyPaused),
		errors.Is(err, gate.ErrNotPaused),
		errors.Is(err, gate.ErrAlreadyBlacklisted),
		errors.Is(err, gate.ErrNotBlacklisted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, fmt.Sprintf("Operation failed: %v", err), http.StatusInternalServerError)
	}
}
