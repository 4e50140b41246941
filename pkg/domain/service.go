// Package domain holds the entity model shared across the gateway:
// ExternalService configuration, the account/addon graph a user builds on
// top of it, and the capability bitset that gates which operations an
// AuthorizedAccount may be used for.
package domain

import "github.com/cos/gravyvalet/pkg/errors"

// Capability is a single addressable permission bit an AuthorizedAccount
// or ConfiguredAddon can hold. The bitset is the ground truth; Cedar
// policy (pkg/authz) only ever narrows it further, never widens it.
type Capability uint32

const (
	CapAccess Capability = 1 << iota
	CapUpdate
	CapPermissionDowngrade
	CapPermissionUpgrade
)

// CapabilitySet is a bitset of Capability values.
type CapabilitySet uint32

func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= CapabilitySet(c)
	}
	return s
}

func (s CapabilitySet) Has(c Capability) bool {
	return s&CapabilitySet(c) != 0
}

func (s CapabilitySet) With(c Capability) CapabilitySet {
	return s | CapabilitySet(c)
}

func (s CapabilitySet) Without(c Capability) CapabilitySet {
	return s &^ CapabilitySet(c)
}

// AuthType names the credential-acquisition flow an ExternalService uses.
type AuthType string

const (
	AuthOAuth1      AuthType = "oauth1"
	AuthOAuth2      AuthType = "oauth2"
	AuthStaticToken AuthType = "static_token"
)

// ExternalService is the static description of a third-party provider:
// which addon implementation handles it, how accounts authenticate, and
// (for OAuth) which registered client credentials to use.
type ExternalService struct {
	ID           string
	Name         string
	AddonImpKey  string // addon registry key, e.g. "box", "zotero"
	BaseURL      string // API base URL passed to gvhttp.Requestor
	AuthType     AuthType
	OAuth1Config *OAuth1ClientConfig
	OAuth2Config *OAuth2ClientConfig
}

// OAuth1ClientConfig holds the consumer key/secret and endpoint URLs
// needed to run the three-legged OAuth1a handshake.
type OAuth1ClientConfig struct {
	ConsumerKey       string
	ConsumerSecret    string
	RequestTokenURL   string
	AuthorizeURL      string
	AccessTokenURL    string
}

// OAuth2ClientConfig holds the client id/secret and endpoints for the
// authorization-code grant, plus the quirks bitset some providers need
// (e.g. requiring `access_type=offline` to get a refresh token at all).
type OAuth2ClientConfig struct {
	ClientID         string
	ClientSecret     string
	AuthorizeURL     string
	TokenURL         string
	DefaultScopes    []string
	Quirks           OAuth2Quirks
}

// OAuth2Quirks captures per-provider deviations from a vanilla
// authorization-code grant that providers have accumulated over time.
type OAuth2Quirks uint32

const (
	// QuirkRequiresAccessTypeOffline appends access_type=offline to the
	// authorize URL, required by providers (e.g. Google-derived ones)
	// that otherwise never issue a refresh token.
	QuirkRequiresAccessTypeOffline OAuth2Quirks = 1 << iota
	// QuirkRequiresApprovalPromptForce appends approval_prompt=force so
	// a user re-authorizing gets a fresh refresh token instead of none.
	QuirkRequiresApprovalPromptForce
	// QuirkRefreshDoesNotRotateRefreshToken means a refresh response may
	// omit refresh_token; the prior one must be retained rather than
	// treated as revoked.
	QuirkRefreshDoesNotRotateRefreshToken
	// QuirkOnlyAccessToken means the provider never issues a refresh
	// token at all (PAT-style grants); credentials.NewOAuth2's
	// access_token-implies-refresh_token rule does not apply.
	QuirkOnlyAccessToken
)

func (q OAuth2Quirks) Has(quirk OAuth2Quirks) bool { return q&quirk != 0 }

// Validate enforces the invariant that an OAuth service must carry the
// matching client config, and a static-token service must carry neither.
func (s ExternalService) Validate() error {
	switch s.AuthType {
	case AuthOAuth1:
		if s.OAuth1Config == nil {
			return errors.NewInvalidArguments("oauth1 service requires an OAuth1ClientConfig", nil)
		}
	case AuthOAuth2:
		if s.OAuth2Config == nil {
			return errors.NewInvalidArguments("oauth2 service requires an OAuth2ClientConfig", nil)
		}
	case AuthStaticToken:
		if s.OAuth1Config != nil || s.OAuth2Config != nil {
			return errors.NewInvalidArguments("static_token service must not carry an OAuth client config", nil)
		}
	default:
		return errors.NewInvalidArguments("unrecognized auth type", nil)
	}
	return nil
}
