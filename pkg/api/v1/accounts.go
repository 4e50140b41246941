package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/cos/gravyvalet/pkg/api/errors"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/oauthflow"
	"github.com/cos/gravyvalet/pkg/storage"
)

// AccountRouter mounts AuthorizedAccount creation and listing. Creating an
// OAuth2 account only hands back the provider's auth URL; the account
// itself is created by the /oauth2/callback handler once the handshake
// completes. An OAuth1 account is created here (its credentials empty)
// since the callback needs an existing account id to correlate the
// pending handshake against, and is then updated in place by
// /oauth1/callback.
func AccountRouter(services *storage.ServiceRepository, accounts *storage.AccountRepository, coordinator *oauthflow.Coordinator, ring *crypto.Ring, httpClient *http.Client) http.Handler {
	routes := &accountRoutes{services: services, accounts: accounts, coordinator: coordinator, ring: ring, httpClient: httpClient}
	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.list))
	r.Post("/", apierrors.ErrorHandler(routes.create))
	r.Post("/{id}/deactivate", apierrors.ErrorHandler(routes.deactivate))
	return r
}

type accountRoutes struct {
	services    *storage.ServiceRepository
	accounts    *storage.AccountRepository
	coordinator *oauthflow.Coordinator
	ring        *crypto.Ring
	httpClient  *http.Client
}

type createAccountRequest struct {
	ServiceID   string `json:"service_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`

	// CallbackURL, for OAuth2, rides along inside the signed state token
	// rather than a server-side session; the /oauth2/callback route
	// answers 200 and does not redirect to it. For OAuth1 it is required
	// and sent to the provider as oauth_callback.
	CallbackURL string `json:"callback_url,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`

	// Token authorizes a static-token AuthType account.
	Token string `json:"token,omitempty"`
}

type accountResponse struct {
	ID          string `json:"id,omitempty"`
	ServiceID   string `json:"service_id"`
	DisplayName string `json:"display_name,omitempty"`
	AuthURL     string `json:"auth_url,omitempty"`
}

func (rt *accountRoutes) list(w http.ResponseWriter, r *http.Request) error {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return gverrors.NewInvalidArguments("user_id query parameter is required", nil)
	}
	accts, err := rt.accounts.ListForUser(r.Context(), userID)
	if err != nil {
		return err
	}
	resp := make([]accountResponse, len(accts))
	for i, a := range accts {
		resp[i] = accountResponse{ID: a.ID, ServiceID: a.ServiceID, DisplayName: a.DisplayName}
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (rt *accountRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return gverrors.NewInvalidArguments("malformed request body", err)
	}
	if req.ServiceID == "" || req.UserID == "" {
		return gverrors.NewInvalidArguments("service_id and user_id are required", nil)
	}

	service, err := rt.services.Get(r.Context(), req.ServiceID)
	if err != nil {
		return err
	}

	switch service.AuthType {
	case domain.AuthStaticToken:
		return rt.createStaticTokenAccount(w, r, service, req)
	case domain.AuthOAuth2:
		return rt.beginOAuth2(w, r, service, req)
	case domain.AuthOAuth1:
		return rt.beginOAuth1(w, r, service, req)
	default:
		return gverrors.NewUnexpectedAddonError("service has an unrecognized auth type", nil)
	}
}

func (rt *accountRoutes) createStaticTokenAccount(w http.ResponseWriter, r *http.Request, service domain.ExternalService, req createAccountRequest) error {
	if req.Token == "" {
		return gverrors.NewInvalidArguments("token is required for a static-token service", nil)
	}
	tok, err := credentials.NewAccessToken(req.Token)
	if err != nil {
		return err
	}

	params, err := crypto.DefaultKeyParameters()
	if err != nil {
		return gverrors.NewUnexpectedAddonError("generating key parameters", err)
	}
	sealed, err := crypto.EncryptJSON(rt.ring, params, tok)
	if err != nil {
		return err
	}

	account := domain.AuthorizedAccount{
		ID:           uuid.NewString(),
		User:         domain.UserReference{PlatformUserID: req.UserID},
		ServiceID:    service.ID,
		DisplayName:  displayNameOrDefault(req.DisplayName),
		Credentials:  domain.ExternalCredentials{Kind: string(credentials.KindAccessToken), Sealed: sealed},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Now().UTC(),
	}
	if err := rt.accounts.Create(r.Context(), account); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, accountResponse{ID: account.ID, ServiceID: service.ID, DisplayName: account.DisplayName})
}

func (rt *accountRoutes) beginOAuth2(w http.ResponseWriter, r *http.Request, service domain.ExternalService, req createAccountRequest) error {
	if service.OAuth2Config == nil {
		return gverrors.NewUnexpectedAddonError("service has no oauth2 configuration", nil)
	}
	if req.RedirectURL == "" {
		return gverrors.NewInvalidArguments("redirect_url is required for an oauth2 service", nil)
	}

	authURL, err := rt.coordinator.BeginOAuth2(service.OAuth2Config, service.ID, req.UserID, req.RedirectURL, req.CallbackURL)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, accountResponse{ServiceID: service.ID, AuthURL: authURL})
}

func (rt *accountRoutes) beginOAuth1(w http.ResponseWriter, r *http.Request, service domain.ExternalService, req createAccountRequest) error {
	if service.OAuth1Config == nil {
		return gverrors.NewUnexpectedAddonError("service has no oauth1 configuration", nil)
	}
	if req.CallbackURL == "" {
		return gverrors.NewInvalidArguments("callback_url is required for an oauth1 service", nil)
	}

	params, err := crypto.DefaultKeyParameters()
	if err != nil {
		return gverrors.NewUnexpectedAddonError("generating key parameters", err)
	}
	sealed, err := crypto.EncryptJSON(rt.ring, params, credentials.OAuth1{})
	if err != nil {
		return err
	}

	account := domain.AuthorizedAccount{
		ID:           uuid.NewString(),
		User:         domain.UserReference{PlatformUserID: req.UserID},
		ServiceID:    service.ID,
		DisplayName:  displayNameOrDefault(req.DisplayName),
		Credentials:  domain.ExternalCredentials{Kind: string(credentials.KindOAuth1), Sealed: sealed},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Now().UTC(),
	}
	if err := rt.accounts.Create(r.Context(), account); err != nil {
		return err
	}

	reqToken, err := rt.coordinator.RequestOAuth1Token(r.Context(), rt.httpClient, service.OAuth1Config, req.CallbackURL)
	if err != nil {
		return err
	}
	pendingToken, err := rt.coordinator.SignPendingOAuth1(account.ID, reqToken)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     pendingOAuth1Cookie,
		Value:    pendingToken,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int((10 * time.Minute).Seconds()),
	})
	return writeJSON(w, http.StatusAccepted, accountResponse{ID: account.ID, ServiceID: service.ID, AuthURL: oauthflow.AuthorizeURL(service.OAuth1Config, reqToken.Token)})
}

func (rt *accountRoutes) deactivate(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	account, err := rt.accounts.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if err := account.Deactivate(time.Now().UTC()); err != nil {
		return err
	}
	if err := rt.accounts.Deactivate(r.Context(), account.ID, *account.DeactivatedAtUTC); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func displayNameOrDefault(name string) string {
	if name == "" {
		return "Connected account"
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
