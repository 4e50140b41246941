package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cos/gravyvalet/pkg/storage"
)

// HealthcheckRouter sets up the healthcheck route.
func HealthcheckRouter(db *storage.DB) http.Handler {
	routes := &healthcheckRoutes{db: db}
	r := chi.NewRouter()
	r.Get("/", routes.getHealthcheck)
	return r
}

type healthcheckRoutes struct {
	db *storage.DB
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
