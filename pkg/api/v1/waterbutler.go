package v1

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/cos/gravyvalet/pkg/api/errors"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	gverrors "github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/oauthflow"
	"github.com/cos/gravyvalet/pkg/storage"
)

// signatureWindow is how far a request's X-Authorization-Timestamp may
// drift from the gateway's clock before it is rejected, guarding against
// replay of an intercepted signed request.
const signatureWindow = 110 * time.Second

// WaterbutlerRouter mounts the Waterbutler-compatible credential lookup
// surface: GET /wb/{resource_guid}:{provider_key} returns the decrypted
// (refreshed if needed) credentials and addon settings a storage-provider client needs, after
// verifying the caller holds hmacSecret.
func WaterbutlerRouter(
	addons *storage.AddonRepository,
	services *storage.ServiceRepository,
	accounts *storage.AccountRepository,
	coordinator *oauthflow.Coordinator,
	ring *crypto.Ring,
	hmacSecret []byte,
) http.Handler {
	routes := &waterbutlerRoutes{addons: addons, services: services, accounts: accounts, coordinator: coordinator, ring: ring, hmacSecret: hmacSecret}
	r := chi.NewRouter()
	r.Get("/{addonKey}", apierrors.ErrorHandler(routes.getCredentials))
	return r
}

type waterbutlerRoutes struct {
	addons      *storage.AddonRepository
	services    *storage.ServiceRepository
	accounts    *storage.AccountRepository
	coordinator *oauthflow.Coordinator
	ring        *crypto.Ring
	hmacSecret  []byte
}

type waterbutlerResponse struct {
	Credentials map[string]any `json:"credentials"`
	Settings    map[string]any `json:"settings"`
}

func (rt *waterbutlerRoutes) getCredentials(w http.ResponseWriter, r *http.Request) error {
	resourceGUID, providerKey, err := splitAddonKey(chi.URLParam(r, "addonKey"))
	if err != nil {
		return err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return gverrors.NewInvalidArguments("could not read request body", err)
	}
	if err := rt.verifySignature(r, body); err != nil {
		return err
	}

	cfgAddon, err := rt.findAddon(r, resourceGUID, providerKey)
	if err != nil {
		return err
	}

	service, err := rt.services.Get(r.Context(), cfgAddon.Account.ServiceID)
	if err != nil {
		return err
	}

	creds, err := credentials.Unseal(rt.ring, credentials.Kind(cfgAddon.Account.Credentials.Kind), cfgAddon.Account.Credentials.Sealed)
	if err != nil {
		return err
	}
	creds, err = rt.refreshIfNeeded(r, cfgAddon, service, creds)
	if err != nil {
		return err
	}

	resp := waterbutlerResponse{
		Credentials: credentialFields(creds),
		Settings:    map[string]any{"root_folder_id": cfgAddon.RootFolderID},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return gverrors.NewUnexpectedAddonError("encoding waterbutler response", err)
	}
	return nil
}

// refreshIfNeeded refreshes an OAuth2 credential that is expired or close
// to it before returning it, persisting the refreshed token so the next
// lookup does not need to refresh again. Delegates to the same
// Coordinator.RefreshAndPersist the Invocation Engine calls before
// dispatch, so both surfaces apply one refresh-then-persist contract.
func (rt *waterbutlerRoutes) refreshIfNeeded(r *http.Request, cfgAddon domain.ConfiguredAddon, service domain.ExternalService, creds credentials.Credentials) (credentials.Credentials, error) {
	return rt.coordinator.RefreshAndPersist(r.Context(), rt.ring, rt.accounts, cfgAddon, service, creds)
}

func (rt *waterbutlerRoutes) findAddon(r *http.Request, resourceGUID, providerKey string) (domain.ConfiguredAddon, error) {
	candidates, err := rt.addons.ListForResource(r.Context(), resourceGUID)
	if err != nil {
		return domain.ConfiguredAddon{}, err
	}
	for _, c := range candidates {
		service, err := rt.services.Get(r.Context(), c.Account.ServiceID)
		if err != nil {
			continue
		}
		if service.AddonImpKey == providerKey {
			return c, nil
		}
	}
	return domain.ConfiguredAddon{}, gverrors.New(gverrors.InvalidArguments, "no configured addon matches "+resourceGUID+":"+providerKey, nil)
}

func splitAddonKey(key string) (resourceGUID, providerKey string, err error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", gverrors.NewInvalidArguments("addon key must be of the form resource_guid:provider_key", nil)
	}
	return parts[0], parts[1], nil
}

func (rt *waterbutlerRoutes) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Authorization-Timestamp")
	if timestamp == "" {
		return gverrors.NewUnauthorized("missing X-Authorization-Timestamp header", nil)
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return gverrors.NewUnauthorized("malformed X-Authorization-Timestamp header", err)
	}
	if drift := time.Since(ts); drift > signatureWindow || drift < -signatureWindow {
		return gverrors.NewUnauthorized("request timestamp is outside the allowed window", nil)
	}

	sig := r.Header.Get("Authorization")
	if sig == "" {
		return gverrors.NewUnauthorized("missing Authorization header", nil)
	}
	expected := signRequest(rt.hmacSecret, r.Method, r.URL.Path, timestamp, body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return gverrors.NewUnauthorized("request signature does not match", nil)
	}
	return nil
}

func signRequest(secret []byte, method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// credentialFields renders a Credentials value in the provider-native
// shape Waterbutler's storage-provider clients expect.
func credentialFields(c credentials.Credentials) map[string]any {
	switch v := c.(type) {
	case credentials.AccessToken:
		return map[string]any{"token": v.Token}
	case credentials.OAuth2:
		return map[string]any{"token": v.AccessToken}
	case credentials.AccessKeySecretKey:
		return map[string]any{"access_key": v.AccessKey, "secret_key": v.SecretKey}
	case credentials.UsernamePassword:
		return map[string]any{"username": v.Username, "password": v.Password}
	case credentials.OAuth1:
		return map[string]any{"oauth_token": v.OAuthToken, "oauth_token_secret": v.OAuthTokenSecret}
	default:
		return nil
	}
}
