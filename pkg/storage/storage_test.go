package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAccountRepository_CreateGetListDeactivate(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := domain.AuthorizedAccount{
		ID:          "acct-1",
		User:        domain.UserReference{PlatformUserID: "user-1"},
		ServiceID:   "box",
		DisplayName: "My Box",
		Credentials: domain.ExternalCredentials{
			Kind:   "access_token",
			Sealed: crypto.Sealed{Params: crypto.KeyParameters{Salt: []byte("s"), ScryptCost: 1 << 14, ScryptBlockSize: 2, ScryptParallelization: 1}, Ciphertext: []byte("ct")},
		},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Unix(1000, 0).UTC(),
	}

	if err := repo.Create(ctx, account); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DisplayName != "My Box" || got.ServiceID != "box" {
		t.Errorf("Get() = %+v", got)
	}
	if !got.IsActive() {
		t.Error("IsActive() = false for a freshly-created account")
	}

	listed, err := repo.ListForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("ListForUser() returned %d accounts, want 1", len(listed))
	}

	if err := repo.Deactivate(ctx, "acct-1", time.Unix(2000, 0)); err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	got, err = repo.Get(ctx, "acct-1")
	if err != nil {
		t.Fatalf("Get() after deactivate error = %v", err)
	}
	if got.IsActive() {
		t.Error("IsActive() = true after Deactivate")
	}

	if err := repo.Deactivate(ctx, "acct-1", time.Unix(3000, 0)); err == nil {
		t.Error("second Deactivate() want error, got nil")
	}
}

func TestAccountRepository_GetMissing(t *testing.T) {
	db := openTestDB(t)
	repo := NewAccountRepository(db)
	if _, err := repo.Get(context.Background(), "does-not-exist"); err == nil {
		t.Error("Get() for missing account: want error, got nil")
	}
}

func TestAddonRepository_CreateGet(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccountRepository(db)
	addons := NewAddonRepository(db, accounts)
	ctx := context.Background()

	account := domain.AuthorizedAccount{
		ID: "acct-1", User: domain.UserReference{PlatformUserID: "user-1"}, ServiceID: "box",
		Credentials: domain.ExternalCredentials{
			Sealed: crypto.Sealed{Params: crypto.KeyParameters{Salt: []byte("s"), ScryptCost: 1 << 14, ScryptBlockSize: 2, ScryptParallelization: 1}},
		},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Unix(1000, 0).UTC(),
	}
	if err := accounts.Create(ctx, account); err != nil {
		t.Fatalf("accounts.Create() error = %v", err)
	}

	addon := domain.ConfiguredAddon{
		ID: "addon-1", Account: account,
		Resource:     domain.ResourceReference{PlatformResourceID: "project-1"},
		Capabilities: domain.NewCapabilitySet(domain.CapAccess),
		CreatedAtUTC: time.Unix(1000, 0).UTC(),
	}
	if err := addons.Create(ctx, addon); err != nil {
		t.Fatalf("addons.Create() error = %v", err)
	}

	got, err := addons.Get(ctx, "addon-1")
	if err != nil {
		t.Fatalf("addons.Get() error = %v", err)
	}
	if got.Account.ID != "acct-1" {
		t.Errorf("Get().Account.ID = %q, want acct-1", got.Account.ID)
	}

	listed, err := addons.ListForResource(ctx, "project-1")
	if err != nil {
		t.Fatalf("ListForResource() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("ListForResource() returned %d, want 1", len(listed))
	}
}

func TestInvocationRepository_DibsLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewInvocationRepository(db)
	ctx := context.Background()

	inv := domain.OperationInvocation{
		ID: "inv-1", AddonID: "addon-1", OperationName: "list_child_items",
		Status: domain.StatusStarting, CreatedAtUTC: time.Unix(1000, 0).UTC(), UpdatedAtUTC: time.Unix(1000, 0).UTC(),
	}
	if err := repo.Create(ctx, inv); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	now := time.Unix(1000, 0)
	ok, err := repo.AcquireDibs(ctx, "inv-1", "worker-a", now.Add(time.Minute), now)
	if err != nil {
		t.Fatalf("AcquireDibs() error = %v", err)
	}
	if !ok {
		t.Fatal("AcquireDibs() = false on an uncontested STARTING invocation")
	}

	ok, err = repo.AcquireDibs(ctx, "inv-1", "worker-b", now.Add(time.Minute), now)
	if err != nil {
		t.Fatalf("second AcquireDibs() error = %v", err)
	}
	if ok {
		t.Error("second AcquireDibs() = true while the first worker's lease is still live")
	}

	later := now.Add(2 * time.Minute)
	ok, err = repo.AcquireDibs(ctx, "inv-1", "worker-c", later.Add(time.Minute), later)
	if err != nil {
		t.Fatalf("AcquireDibs() after expiry error = %v", err)
	}
	if !ok {
		t.Error("AcquireDibs() = false after the prior lease expired")
	}

	if err := repo.Complete(ctx, "inv-1", domain.StatusSuccess, map[string]any{"ok": true}, "", "", later); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got, err := repo.Get(ctx, "inv-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != domain.StatusSuccess {
		t.Errorf("Status = %v, want %v", got.Status, domain.StatusSuccess)
	}
}

func TestInvocationRepository_ListForAddon(t *testing.T) {
	db := openTestDB(t)
	repo := NewInvocationRepository(db)
	ctx := context.Background()

	for i, id := range []string{"inv-a", "inv-b"} {
		inv := domain.OperationInvocation{
			ID: id, AddonID: "addon-1", OperationName: "list_child_items",
			Status:       domain.StatusStarting,
			CreatedAtUTC: time.Unix(int64(1000+i), 0).UTC(),
			UpdatedAtUTC: time.Unix(int64(1000+i), 0).UTC(),
		}
		if err := repo.Create(ctx, inv); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	other := domain.OperationInvocation{
		ID: "inv-other", AddonID: "addon-2", OperationName: "list_child_items",
		Status: domain.StatusStarting, CreatedAtUTC: time.Unix(1000, 0).UTC(), UpdatedAtUTC: time.Unix(1000, 0).UTC(),
	}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	listed, err := repo.ListForAddon(ctx, "addon-1")
	if err != nil {
		t.Fatalf("ListForAddon() error = %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("ListForAddon() returned %d invocations, want 2", len(listed))
	}
	if listed[0].ID != "inv-b" {
		t.Errorf("ListForAddon()[0].ID = %q, want most-recent-first order", listed[0].ID)
	}
}

func TestServiceRepository_CreateGetListAll(t *testing.T) {
	db := openTestDB(t)
	repo := NewServiceRepository(db)
	ctx := context.Background()

	oauth2Service := domain.ExternalService{
		ID:          "box",
		Name:        "Box",
		AddonImpKey: "box",
		BaseURL:     "https://api.box.com/2.0",
		AuthType:    domain.AuthOAuth2,
		OAuth2Config: &domain.OAuth2ClientConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			AuthorizeURL: "https://account.box.com/api/oauth2/authorize",
			TokenURL:     "https://api.box.com/oauth2/token",
		},
	}
	staticTokenService := domain.ExternalService{
		ID:          "blarg",
		Name:        "Blarg",
		AddonImpKey: "blarg",
		AuthType:    domain.AuthStaticToken,
	}

	if err := repo.Create(ctx, oauth2Service); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, staticTokenService); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.Get(ctx, "box")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.BaseURL != oauth2Service.BaseURL || got.AuthType != domain.AuthOAuth2 {
		t.Errorf("Get() = %+v", got)
	}
	if got.OAuth2Config == nil || got.OAuth2Config.ClientID != "client-id" {
		t.Errorf("Get() OAuth2Config = %+v", got.OAuth2Config)
	}
	if got.OAuth1Config != nil {
		t.Errorf("Get() OAuth1Config = %+v, want nil", got.OAuth1Config)
	}

	got, err = repo.Get(ctx, "blarg")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.OAuth1Config != nil || got.OAuth2Config != nil {
		t.Errorf("Get() for a static-token service = %+v, want no oauth configs", got)
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListAll() returned %d services, want 2", len(all))
	}

	if _, err := repo.Get(ctx, "missing"); err == nil {
		t.Error("Get() for a missing service: want error, got nil")
	}
}
