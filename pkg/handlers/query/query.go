package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fvkry/custody/pkg/api"
	"github.com/fvkry/custody/pkg/ledger"
	"github.com/fvkry/custody/pkg/mapping"
	"github.com/fvkry/custody/pkg/query"
	"github.com/go-chi/chi/v5"
)

// QueryHandler serves the read-only projections.
type QueryHandler struct {
	Facade *query.Facade
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(f *query.Facade) *QueryHandler {
	return &QueryHandler{Facade: f}
}

// ListSubVaults handles GET /vaults/{vaultID}/locks.
func (h *QueryHandler) ListSubVaults(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, ok := callerAndVault(w, r)
	if !ok {
		return
	}

	subVaults, err := h.Facade.SubVaults(caller, vaultID)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	out := make([]*api.SubVault, len(subVaults))
	for i := range subVaults {
		out[i] = mapping.ToApiSubVault(&subVaults[i])
	}
	respond(w, out)
}

// ListTransactionRecords handles GET /vaults/{vaultID}/transactions.
func (h *QueryHandler) ListTransactionRecords(w http.ResponseWriter, r *http.Request) {
	caller, vaultID, ok := callerAndVault(w, r)
	if !ok {
		return
	}

	records, err := h.Facade.TransactionRecords(r.Context(), caller, vaultID)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	out := make([]*api.TransactionRecord, len(records))
	for i := range records {
		out[i] = mapping.ToApiTransactionRecord(&records[i])
	}
	respond(w, out)
}

// Balance handles GET /balances. An absent token query param reports native
// custody.
func (h *QueryHandler) Balance(w http.ResponseWriter, r *http.Request) {
	asset, err := mapping.ParseAsset(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	total := h.Facade.CustodyBalance(asset.Token)
	respond(w, &api.Balance{
		Token:   asset.Token.Hex(),
		Native:  asset.Native,
		Balance: total.String(),
	})
}

func callerAndVault(w http.ResponseWriter, r *http.Request) (common.Address, uint64, bool) {
	caller, err := mapping.CallerFromRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid caller address: %v", err), http.StatusBadRequest)
		return common.Address{}, 0, false
	}
	raw := chi.URLParam(r, "vaultID")
	vaultID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid vault id %q", raw), http.StatusBadRequest)
		return common.Address{}, 0, false
	}
	return caller, vaultID, true
}

func respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidVaultID):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, fmt.Sprintf("Failed to retrieve data: %v", err), http.StatusInternalServerError)
	}
}
