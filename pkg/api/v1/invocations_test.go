package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/gvhttp"
	"github.com/cos/gravyvalet/pkg/invocation"
	"github.com/cos/gravyvalet/pkg/queue"
	"github.com/cos/gravyvalet/pkg/storage"
)

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) Authorize(context.Context, domain.ConfiguredAddon, domain.OperationDeclaration) error {
	return nil
}

type fakeInvocationImp struct{}

func (fakeInvocationImp) ImpKey() string { return "test-invocation-router-imp" }

func newTestInvocationRouter(t *testing.T) (http.Handler, domain.AuthorizedAccount, domain.ConfiguredAddon) {
	t.Helper()

	impKey := "test-invocation-router-imp-" + t.Name()
	addon.Register(impKey, func(r *gvhttp.Requestor, a domain.ConfiguredAddon) addon.Imp {
		return fakeInvocationImp{}
	}, addon.OperationEntry{
		Declaration: domain.OperationDeclaration{Name: "list_child_items", RequiredCapability: domain.CapAccess, Mode: domain.ModeImmediate},
		Invoke: func(ctx context.Context, imp addon.Imp, args map[string]any) (any, error) {
			return map[string]any{"items": []string{"a.txt", "b.txt"}}, nil
		},
	})

	db, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	accounts := storage.NewAccountRepository(db)
	addons := storage.NewAddonRepository(db, accounts)
	services := storage.NewServiceRepository(db)
	invocations := storage.NewInvocationRepository(db)
	factory := addon.NewFactory(http.DefaultClient)
	q := queue.New(redisClient)
	ring := crypto.NewRing("test-secret")
	engine := invocation.New(invocations, factory, allowAllAuthorizer{}, q, "worker-test", nil, accounts, ring)

	service := domain.ExternalService{ID: "svc-1", Name: "Test Service", AddonImpKey: impKey, AuthType: domain.AuthStaticToken}
	require.NoError(t, services.Create(context.Background(), service))

	params, err := crypto.DefaultKeyParameters()
	require.NoError(t, err)
	sealed, err := crypto.EncryptJSON(ring, params, credentials.AccessToken{Token: "tok"})
	require.NoError(t, err)

	account := domain.AuthorizedAccount{
		ID: "acct-1", ServiceID: service.ID,
		Credentials:  domain.ExternalCredentials{Kind: string(credentials.KindAccessToken), Sealed: sealed},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Unix(1000, 0).UTC(),
	}
	require.NoError(t, accounts.Create(context.Background(), account))

	cfgAddon := domain.ConfiguredAddon{
		ID: "addon-1", Account: account,
		Resource:     domain.ResourceReference{PlatformResourceID: "resource-1"},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Unix(1000, 0).UTC(),
	}
	require.NoError(t, addons.Create(context.Background(), cfgAddon))

	router := InvocationRouter(engine, addons, services, invocations, ring)
	return router, account, cfgAddon
}

func TestInvocationRouter_CreateImmediateSuccess(t *testing.T) {
	router, _, cfgAddon := newTestInvocationRouter(t)

	body := strings.NewReader(`{"configured_addon_id":"` + cfgAddon.ID + `","operation_name":"list_child_items","arguments":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp invocationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, string(domain.StatusSuccess), resp.Status)
	require.NotEmpty(t, resp.ID)
}

func TestInvocationRouter_CreateMissingFields(t *testing.T) {
	router, _, _ := newTestInvocationRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvocationRouter_GetByID(t *testing.T) {
	router, _, cfgAddon := newTestInvocationRouter(t)

	body := strings.NewReader(`{"configured_addon_id":"` + cfgAddon.ID + `","operation_name":"list_child_items","arguments":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var created invocationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	req = httptest.NewRequest(http.MethodGet, "/"+created.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got invocationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Equal(t, created.ID, got.ID)
}

func TestInvocationRouter_ListRequiresAddonID(t *testing.T) {
	router, _, _ := newTestInvocationRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvocationRouter_ListForAddon(t *testing.T) {
	router, _, cfgAddon := newTestInvocationRouter(t)

	body := strings.NewReader(`{"configured_addon_id":"` + cfgAddon.ID + `","operation_name":"list_child_items","arguments":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/?configured_addon_id="+cfgAddon.ID, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var list []invocationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
}
