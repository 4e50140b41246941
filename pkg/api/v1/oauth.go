package v1

import (
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

// pendingOAuth1Cookie is the cookie beginOAuth1 (accounts.go) stashes
// SignPendingOAuth1's token into, for OAuthRouter's /oauth1/callback route
// to read back out once the provider redirects the user's browser here.
const pendingOAuth1Cookie = "gv_oauth1_pending"

// OAuthRouter mounts the OAuth1/OAuth2 callback endpoints the provider
// redirects a user's browser to once they approve (or deny) access.
// httpClient is used for the OAuth1 token-exchange requests, which the
// golang.org/x/oauth2 package (used for OAuth2) does not need since it
// manages its own transport.
func OAuthRouter(
	coordinator *oauthflow.Coordinator,
	services *storage.ServiceRepository,
	accounts *storage.AccountRepository,
	ring *crypto.Ring,
	httpClient *http.Client,
) http.Handler {
	routes := &oauthRoutes{coordinator: coordinator, services: services, accounts: accounts, ring: ring, httpClient: httpClient}
	r := chi.NewRouter()
	r.Get("/oauth2/callback", apierrors.ErrorHandler(routes.oauth2Callback))
	r.Get("/oauth1/callback", apierrors.ErrorHandler(routes.oauth1Callback))
	return r
}

type oauthRoutes struct {
	coordinator *oauthflow.Coordinator
	services    *storage.ServiceRepository
	accounts    *storage.AccountRepository
	ring        *crypto.Ring
	httpClient  *http.Client
}

func (rt *oauthRoutes) oauth2Callback(w http.ResponseWriter, r *http.Request) error {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		return gverrors.NewInvalidArguments("state and code query parameters are required", nil)
	}

	pending, err := rt.coordinator.ResolveState(state)
	if err != nil {
		return err
	}

	service, err := rt.services.Get(r.Context(), pending.ServiceID)
	if err != nil {
		return err
	}
	if service.OAuth2Config == nil {
		return gverrors.NewUnexpectedAddonError("service has no oauth2 configuration", nil)
	}

	tok, err := rt.coordinator.CompleteOAuth2(r.Context(), service.OAuth2Config, oauth2RedirectURL(r), code)
	if err != nil {
		return err
	}

	if err := rt.persistAccount(r, pending.ServiceID, pending.UserID, tok); err != nil {
		return err
	}

	w.WriteHeader(http.StatusOK)
	return nil
}

func (rt *oauthRoutes) oauth1Callback(w http.ResponseWriter, r *http.Request) error {
	oauthToken := r.URL.Query().Get("oauth_token")
	verifier := r.URL.Query().Get("oauth_verifier")
	if oauthToken == "" || verifier == "" {
		return gverrors.NewInvalidArguments("oauth_token and oauth_verifier query parameters are required", nil)
	}

	cookie, err := r.Cookie(pendingOAuth1Cookie)
	if err != nil {
		return gverrors.NewUnauthorized("no pending oauth1 handshake for this request", err)
	}

	pending, err := rt.coordinator.ResolvePendingOAuth1(cookie.Value, oauthToken)
	if err != nil {
		return err
	}

	account, err := rt.accounts.Get(r.Context(), pending.AccountID)
	if err != nil {
		return err
	}

	service, err := rt.services.Get(r.Context(), account.ServiceID)
	if err != nil {
		return err
	}
	if service.OAuth1Config == nil {
		return gverrors.NewUnexpectedAddonError("service has no oauth1 configuration", nil)
	}

	tok, err := rt.coordinator.CompleteOAuth1(r.Context(), rt.httpClient, service.OAuth1Config, pending.RequestToken, pending.RequestTokenSecret, verifier)
	if err != nil {
		return err
	}

	if err := rt.updateAccountCredentials(r, account, tok); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{Name: pendingOAuth1Cookie, MaxAge: -1, Path: "/"})
	w.WriteHeader(http.StatusOK)
	return nil
}

// persistAccount creates a new AuthorizedAccount from a completed OAuth2
// handshake. A repeat authorization for the same (serviceID, userID) pair
// is modeled as a new account rather than an update, mirroring how a user
// can hold more than one account against the same service.
func (rt *oauthRoutes) persistAccount(r *http.Request, serviceID, userID string, tok credentials.OAuth2) error {
	params, err := crypto.DefaultKeyParameters()
	if err != nil {
		return gverrors.NewUnexpectedAddonError("generating key parameters", err)
	}
	sealed, err := crypto.EncryptJSON(rt.ring, params, tok)
	if err != nil {
		return err
	}
	kind, err := credentials.KindOf(tok)
	if err != nil {
		return gverrors.NewUnexpectedAddonError(err.Error(), nil)
	}

	account := domain.AuthorizedAccount{
		ID:          uuid.NewString(),
		User:        domain.UserReference{PlatformUserID: userID},
		ServiceID:   serviceID,
		DisplayName: "Connected account",
		Credentials: domain.ExternalCredentials{Kind: string(kind), Sealed: sealed},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Now().UTC(),
	}
	return rt.accounts.Create(r.Context(), account)
}

func (rt *oauthRoutes) updateAccountCredentials(r *http.Request, account domain.AuthorizedAccount, tok credentials.OAuth1) error {
	sealed, err := crypto.EncryptJSON(rt.ring, account.Credentials.Sealed.Params, tok)
	if err != nil {
		return err
	}
	return rt.accounts.UpdateCredentials(r.Context(), account.ID, sealed)
}

// oauth2RedirectURL reconstructs the redirect_uri the original BeginOAuth2
// call used: this handler's own absolute URL, with the query string
// stripped.
func oauth2RedirectURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.Path
}
