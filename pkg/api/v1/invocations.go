package v1

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/cos/gravyvalet/pkg/api/errors"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/invocation"
	"github.com/cos/gravyvalet/pkg/storage"
)

// InvocationRouter mounts the invocation submission and polling routes:
// POST /invocations creates and (for immediate-mode operations) runs an
// invocation; GET /invocations lists invocations for a ConfiguredAddon;
// GET /invocations/{id} fetches one by id.
func InvocationRouter(engine *invocation.Engine, addons *storage.AddonRepository, services *storage.ServiceRepository, invocations *storage.InvocationRepository, ring *crypto.Ring) http.Handler {
	routes := &invocationRoutes{engine: engine, addons: addons, services: services, invocations: invocations, ring: ring}
	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.list))
	r.Post("/", apierrors.ErrorHandler(routes.create))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	return r
}

type invocationRoutes struct {
	engine      *invocation.Engine
	addons      *storage.AddonRepository
	services    *storage.ServiceRepository
	invocations *storage.InvocationRepository
	ring        *crypto.Ring
}

type createInvocationRequest struct {
	ConfiguredAddonID string         `json:"configured_addon_id"`
	OperationName     string         `json:"operation_name"`
	Arguments         map[string]any `json:"arguments"`
}

type invocationResponse struct {
	ID            string         `json:"id"`
	AddonID       string         `json:"configured_addon_id"`
	OperationName string         `json:"operation_name"`
	Status        string         `json:"status"`
	Result        any            `json:"result,omitempty"`
	ErrorKind     string         `json:"error_kind,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	RedirectURL   string         `json:"redirect_url,omitempty"`
	Arguments     map[string]any `json:"arguments,omitempty"`
}

func (rt *invocationRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var req createInvocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return gverrors.NewInvalidArguments("malformed request body", err)
	}
	if req.ConfiguredAddonID == "" || req.OperationName == "" {
		return gverrors.NewInvalidArguments("configured_addon_id and operation_name are required", nil)
	}

	cfgAddon, err := rt.addons.Get(r.Context(), req.ConfiguredAddonID)
	if err != nil {
		return err
	}
	if !cfgAddon.Account.IsActive() {
		return gverrors.New(gverrors.Unauthorized, "the addon's backing account has been deactivated", nil)
	}

	service, err := rt.services.Get(r.Context(), cfgAddon.Account.ServiceID)
	if err != nil {
		return err
	}

	creds, err := credentials.Unseal(rt.ring, credentials.Kind(cfgAddon.Account.Credentials.Kind), cfgAddon.Account.Credentials.Sealed)
	if err != nil {
		return err
	}

	outcome, err := rt.engine.Invoke(r.Context(), cfgAddon, service, service.BaseURL, creds, req.OperationName, req.Arguments)
	if err != nil && outcome.InvocationID == "" {
		return err
	}

	resp := invocationResponse{
		ID:            outcome.InvocationID,
		AddonID:       cfgAddon.ID,
		OperationName: req.OperationName,
		Status:        string(outcome.Status),
		Result:        outcome.Result,
		RedirectURL:   outcome.RedirectURL,
	}
	if err != nil {
		if gvErr, ok := err.(*gverrors.Error); ok {
			resp.ErrorKind = string(gvErr.Type)
			resp.ErrorMessage = gvErr.Message
		} else {
			resp.ErrorMessage = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return gverrors.NewUnexpectedAddonError("encoding invocation response", err)
	}
	return nil
}

func (rt *invocationRoutes) get(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	inv, err := rt.invocations.Get(r.Context(), id)
	if err != nil {
		return err
	}
	return writeInvocation(w, inv)
}

func (rt *invocationRoutes) list(w http.ResponseWriter, r *http.Request) error {
	addonID := r.URL.Query().Get("configured_addon_id")
	if addonID == "" {
		return gverrors.NewInvalidArguments("configured_addon_id query parameter is required", nil)
	}
	invs, err := rt.invocations.ListForAddon(r.Context(), addonID)
	if err != nil {
		return err
	}

	resp := make([]invocationResponse, 0, len(invs))
	for _, inv := range invs {
		resp = append(resp, toInvocationResponse(inv))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return gverrors.NewUnexpectedAddonError("encoding invocation list response", err)
	}
	return nil
}

func writeInvocation(w http.ResponseWriter, inv domain.OperationInvocation) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toInvocationResponse(inv)); err != nil {
		return gverrors.NewUnexpectedAddonError("encoding invocation response", err)
	}
	return nil
}

func toInvocationResponse(inv domain.OperationInvocation) invocationResponse {
	return invocationResponse{
		ID:            inv.ID,
		AddonID:       inv.AddonID,
		OperationName: inv.OperationName,
		Status:        string(inv.Status),
		Result:        inv.Result,
		ErrorKind:     inv.ErrorKind,
		ErrorMessage:  inv.ErrorMessage,
		Arguments:     inv.Arguments,
	}
}
