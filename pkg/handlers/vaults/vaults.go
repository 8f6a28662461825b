package vaults

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/api"
	"github.com/fvkry/custody/pkg/engine"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/mapping"
	"github.com/fvkry/custody/pkg/transport"
	"github.com/go-chi/chi/v5"
)

// VaultsHandler serves the mutating vault operations.
type VaultsHandler struct {
	Engine *engine.Engine
}

// NewVaultsHandler creates a new VaultsHandler.
func NewVaultsHandler(e *engine.Engine) *VaultsHandler {
	return &VaultsHandler{Engine: e}
}

// Lock handles POST /vaults/{vaultID}/locks.
func (h *VaultsHandler) Lock(w http.ResponseWriter, r *http.Request) {
	caller, err := mapping.CallerFromRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid caller address: %v", err), http.StatusBadRequest)
		return
	}
	vaultID, err := vaultIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req api.LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	asset, err := mapping.ParseAsset(req.Token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := mapping.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sv, err := h.Engine.Lock(r.Context(), caller, vaultID,
		time.Duration(req.LockPeriodSeconds)*time.Second, req.Title, asset, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond(w, http.StatusCreated, mapping.ToApiSubVault(sv))
}

// Add handles POST /vaults/{vaultID}/locks/{assetID}/add.
func (h *VaultsHandler) Add(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, assetID, ok := callerAndIDs(w, r)
	if !ok {
		return
	}

	var req api.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	amount, err := mapping.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sv, err := h.Engine.AddToLocked(r.Context(), caller, vaultID, assetID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond(w, http.StatusOK, mapping.ToApiSubVault(sv))
}

// Withdraw handles POST /vaults/{vaultID}/locks/{assetID}/withdraw.
func (h *VaultsHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, assetID, ok := callerAndIDs(w, r)
	if !ok {
		return
	}

	var req api.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	amount, err := mapping.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sv, err := h.Engine.Withdraw(r.Context(), caller, vaultID, assetID, amount, req.GoalReached)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond(w, http.StatusOK, mapping.ToApiSubVault(sv))
}

// Extend handles POST /vaults/{vaultID}/locks/{assetID}/extend.
func (h *VaultsHandler) Extend(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, assetID, ok := callerAndIDs(w, r)
	if !ok {
		return
	}

	var req api.ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	sv, err := h.Engine.Extend(r.Context(), caller, vaultID, assetID,
		time.Duration(req.ExtensionSeconds)*time.Second)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond(w, http.StatusOK, mapping.ToApiSubVault(sv))
}

// Rename handles PUT /vaults/{vaultID}/locks/{assetID}/title.
func (h *VaultsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, assetID, ok := callerAndIDs(w, r)
	if !ok {
		return
	}

	var req api.RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	sv, err := h.Engine.Rename(r.Context(), caller, vaultID, assetID, req.Title)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	respond(w, http.StatusOK, mapping.ToApiSubVault(sv))
}

// Delete handles DELETE /vaults/{vaultID}/locks/{assetID}. Deletion compacts
// the vault's sequence, so clients must re-query asset ids afterwards.
func (h *VaultsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, assetID, ok := callerAndIDs(w, r)
	if !ok {
		return
	}

	if err := h.Engine.Delete(r.Context(), caller, vaultID, assetID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transfer handles POST /transfers.
func (h *VaultsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, err := mapping.CallerFromRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid caller address: %v", err), http.StatusBadRequest)
		return
	}

	var req api.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	amount, err := mapping.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.Engine.TransferBetween(r.Context(), caller, amount,
		req.FromVaultID, req.FromAssetID, req.ToVaultID, req.ToAssetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func vaultIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "vaultID")
	vaultID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid vault id %q", raw)
	}
	return vaultID, nil
}

func assetIDParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "assetID")
	assetID, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid asset id %q", raw)
	}
	return assetID, nil
}

// callerAndIDs resolves the caller address and both path ids, writing the
// 400 itself on failure.
func callerAndIDs(w http.ResponseWriter, r *http.Request) (common.Address, uint64, int, bool) {
	caller, err := mapping.CallerFromRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid caller address: %v", err), http.StatusBadRequest)
		return common.Address{}, 0, 0, false
	}
	vaultID, err := vaultIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return common.Address{}, 0, 0, false
	}
	assetID, err := assetIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return common.Address{}, 0, 0, false
	}
	return caller, vaultID, assetID, true
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

// writeEngineError maps domain errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidVaultID), errors.Is(err, ledger.ErrInvalidAssetID):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrNonPositiveAmount),
		errors.Is(err, engine.ErrNonPositiveLockPeriod),
		errors.Is(err, engine.ErrNonPositiveExtension),
		errors.Is(err, engine.ErrZeroTokenAddress):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrTokenMismatch),
		errors.Is(err, transport.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, engine.ErrPaused),
		errors.Is(err, engine.ErrTokenBlacklisted),
		errors.Is(err, engine.ErrNotMatured),
		errors.Is(err, engine.ErrLockExpired),
		errors.Is(err, engine.ErrLockNotExpired),
		errors.Is(err, engine.ErrAlreadyWithdrawn),
		errors.Is(err, engine.ErrNotFullyWithdrawn),
		errors.Is(err, engine.ErrDestinationMatured),
		errors.Is(err, ledger.ErrVaultFull):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, fmt.Sprintf("Operation failed: %v", err), http.StatusInternalServerError)
	}
}
