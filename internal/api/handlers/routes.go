package handlers

import (
	"net/http"

	"github.com/dvloznov/kyc-ledger/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Router holds the handlers served by the API.
type Router struct {
	Documents *DocumentsHandler
	Clients   *ClientsHandler
	Jobs      *JobsHandler
	// APIToken enables bearer-token auth when set.
	APIToken string
}

// Handler registers every route and wraps the mux in the middleware chain.
func (rt Router) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	if rt.Documents != nil {
		mux.Handle("POST /api/documents/analyze", middleware.MaxBody(MaxDocumentBytes)(http.HandlerFunc(rt.Documents.Analyze)))
		mux.HandleFunc("POST /api/documents/enqueue", rt.Documents.Enqueue)
	}

	if rt.Clients != nil {
		mux.HandleFunc("GET /api/clients", rt.Clients.ListClients)
		mux.HandleFunc("GET /api/clients/{key}", rt.Clients.GetClient)
		mux.HandleFunc("GET /api/clients/{key}/net-worth", rt.Clients.NetWorth)
		mux.HandleFunc("POST /api/reconcile", rt.Clients.Reconcile)
		mux.HandleFunc("GET /api/export", rt.Clients.Export)
		mux.HandleFunc("POST /api/import", rt.Clients.Import)
	}

	if rt.Jobs != nil {
		mux.HandleFunc("GET /api/jobs", rt.Jobs.ListJobs)
		mux.HandleFunc("GET /api/jobs/{id}", rt.Jobs.GetJob)
	}

	mux.HandleFunc("GET /health", Health)

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(rt.APIToken)(mux),
				),
			),
		),
	)
}
