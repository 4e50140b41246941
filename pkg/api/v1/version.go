package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Version is the gateway's build version, set via -ldflags at build time.
// It defaults to "dev" for local builds.
var Version = "dev"

// VersionRouter sets up the version route.
func VersionRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getVersion)
	return r
}

type versionResponse struct {
	Version string `json:"version"`
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(versionResponse{Version: Version}); err != nil {
		http.Error(w, "failed to marshal version info", http.StatusInternalServerError)
		return
	}
}
