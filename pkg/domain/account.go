package domain

import (
	"time"

	"github.com/cos/gravyvalet/pkg/crypto"
	"github.com/cos/gravyvalet/pkg/errors"
)

// UserReference identifies the platform user who owns an account or addon,
// by the platform's own user id; the gateway never owns user identity.
type UserReference struct {
	PlatformUserID string
}

// ResourceReference identifies the platform resource (a project, a
// registration) a ConfiguredAddon is attached to.
type ResourceReference struct {
	PlatformResourceID string
}

// ExternalCredentials is the encrypted-at-rest envelope around a
// credentials.Credentials value: the sealed bytes plus the Kind tag
// needed to know which concrete type to decode into.
type ExternalCredentials struct {
	Kind   string
	Sealed crypto.Sealed
}

// AuthorizedAccount is a single user's link to an ExternalService: the
// credentials that let the gateway act on the user's behalf, plus the
// capabilities those credentials were granted for.
type AuthorizedAccount struct {
	ID              string
	User            UserReference
	ServiceID       string
	DisplayName     string
	Credentials     ExternalCredentials
	Capabilities    CapabilitySet
	CreatedAtUTC    time.Time
	DeactivatedAtUTC *time.Time

	// RemoteAccountID, when set, disambiguates multiple AuthorizedAccounts
	// on the same ExternalService for the same user (e.g. two Box
	// accounts); it is the provider's own account identifier.
	RemoteAccountID string
}

// IsActive reports whether the account may still be used for invocations.
func (a AuthorizedAccount) IsActive() bool {
	return a.DeactivatedAtUTC == nil
}

// Deactivate marks the account inactive. A deactivated account's
// credentials are retained (for audit) but Invocation Engine dispatch must
// refuse to use it; mirrors the original's soft-delete semantics.
func (a *AuthorizedAccount) Deactivate(now time.Time) error {
	if a.DeactivatedAtUTC != nil {
		return errors.New(errors.InvalidArguments, "account is already deactivated", nil)
	}
	a.DeactivatedAtUTC = &now
	return nil
}

// ConfiguredAddon binds an AuthorizedAccount to a specific platform
// resource, with its own (narrower-or-equal) capability subset and any
// addon-specific config the provider's imp needs (e.g. a root folder id).
type ConfiguredAddon struct {
	ID           string
	Account      AuthorizedAccount
	Resource     ResourceReference
	Capabilities CapabilitySet
	RootFolderID string
	CreatedAtUTC time.Time
}

// Validate enforces that a ConfiguredAddon can never hold a capability its
// backing account lacks: the account is the ceiling, the addon the floor.
func (c ConfiguredAddon) Validate() error {
	if c.Capabilities&^c.Account.Capabilities != 0 {
		return errors.NewInvalidArguments("configured addon capabilities exceed its account's capabilities", nil)
	}
	if !c.Account.IsActive() {
		return errors.NewInvalidArguments("configured addon's backing account is deactivated", nil)
	}
	return nil
}

// DeactivateUser deactivates every AuthorizedAccount belonging to
// platformUserID as part of user offboarding: a deactivated user's
// accounts stop being usable for new invocations without deleting audit
// history.
func DeactivateUser(accounts []*AuthorizedAccount, platformUserID string, now time.Time) (deactivated int, err error) {
	for _, a := range accounts {
		if a.User.PlatformUserID != platformUserID || !a.IsActive() {
			continue
		}
		if err := a.Deactivate(now); err != nil {
			return deactivated, err
		}
		deactivated++
	}
	return deactivated, nil
}

// MergeUsers reassigns every AuthorizedAccount owned by fromUserID to
// toUserID, used when the platform merges two user records into one.
// Accounts on a service the target user already has an active account
// for are left untouched rather than silently overwritten, and counted
// as skipped so the caller can surface the conflict.
func MergeUsers(accounts []*AuthorizedAccount, fromUserID, toUserID string) (merged, skipped int) {
	existing := make(map[string]bool)
	for _, a := range accounts {
		if a.User.PlatformUserID == toUserID && a.IsActive() {
			existing[a.ServiceID] = true
		}
	}
	for _, a := range accounts {
		if a.User.PlatformUserID != fromUserID {
			continue
		}
		if existing[a.ServiceID] {
			skipped++
			continue
		}
		a.User = UserReference{PlatformUserID: toUserID}
		existing[a.ServiceID] = true
		merged++
	}
	return merged, skipped
}
