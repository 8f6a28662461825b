package handlers

import (
	"log/slog"
	"net/http"

	"github.com/fvkry/custody/pkg/engine"
	"github.com/fvkry/custody/pkg/handlers/admin"
	queryhandler "github.com/fvkry/custody/pkg/handlers/query"
	"github.com/fvkry/custody/pkg/handlers/vaults"
	"github.com/fvkry/custody/pkg/middleware"
	"github.com/fvkry/custody/pkg/query"
	"github.com/go-chi/chi/v5"
)

// NewRouter wires the vault, admin and query handlers onto a chi router with
// structured request logging.
func NewRouter(e *engine.Engine, f *query.Facade, logger *slog.Logger) http.Handler {
	v := vaults.NewVaultsHandler(e)
	a := admin.NewAdminHandler(e)
	q := queryhandler.NewQueryHandler(f)

	r := chi.NewRouter()
	r.Use(middleware.NewStructuredLogger(logger))

	r.Route("/vaults/{vaultID}", func(r chi.Router) {
		r.Post("/locks", v.Lock)
		r.Get("/locks", q.ListSubVaults)
		r.Get("/transactions", q.ListTransactionRecords)

		r.Route("/locks/{assetID}", func(r chi.Router) {
			r.Post("/add", v.Add)
			r.Post("/withdraw", v.Withdraw)
			r.Post("/extend", v.Extend)
			r.Put("/title", v.Rename)
			r.Delete("/", v.Delete)
		})
	})

	r.Post("/transfers", v.Transfer)
	r.Get("/balances", q.Balance)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/pause", a.Pause)
		r.Post("/unpause", a.Unpause)
		r.Post("/blacklist/{token}", a.Blacklist)
		r.Delete("/blacklist/{token}", a.Unblacklist)
	})

	return r
}
