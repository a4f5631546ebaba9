package vaultledger

import (
	"log/slog"

	httpadapter "custodia/contexts/treasury/vault-ledger/adapters/http"
	"custodia/contexts/treasury/vault-ledger/adapters/memory"
	"custodia/contexts/treasury/vault-ledger/application"
	"custodia/contexts/treasury/vault-ledger/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store
}

type Dependencies struct {
	Repository ports.Repository
	Outbox     ports.OutboxWriter
	Transfer   ports.TransferClient
	Authority  ports.AuthorityClient
	Clock      ports.Clock
	IDGen      ports.IDGenerator
	Logger     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	service := application.Service{
		Repo:      deps.Repository,
		Outbox:    deps.Outbox,
		Transfer:  deps.Transfer,
		Authority: deps.Authority,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Service: service,
			Logger:  deps.Logger,
		},
	}
}

// NewInMemoryModule wires the module entirely against the memory store,
// including the toy token ledger used as transfer and authority collaborator.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Repository: store,
		Outbox:     store,
		Transfer:   store,
		Authority:  store,
		Clock:      store,
		IDGen:      store,
		Logger:     logger,
	})
	module.Store = store
	return module
}
