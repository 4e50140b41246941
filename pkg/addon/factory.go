package addon

import (
	"net/http"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

// Factory builds a ready-to-invoke Imp for a ConfiguredAddon: it resolves
// the imp key to a Constructor, builds a Requestor pinned to the
// service's base URL and carrying the account's decrypted credentials,
// and hands both to the Constructor.
type Factory struct {
	client *http.Client
}

// NewFactory builds a Factory using client for all outbound provider
// calls. A nil client uses http.DefaultClient.
func NewFactory(client *http.Client) *Factory {
	return &Factory{client: client}
}

// Build constructs the Imp for addon, given the owning service (for its
// imp key and base URL) and the account's already-decrypted credentials.
func (f *Factory) Build(addon domain.ConfiguredAddon, service domain.ExternalService, serviceBaseURL string, creds credentials.Credentials) (Imp, error) {
	if err := addon.Validate(); err != nil {
		return nil, err
	}
	if _, _, ok := Lookup(service.AddonImpKey); !ok {
		return nil, errors.NewUnexpectedAddonError("no imp registered for this account's service", nil)
	}

	requestor, err := gvhttp.New(f.client, serviceBaseURL, creds)
	if err != nil {
		return nil, err
	}
	return build(service.AddonImpKey, addon, requestor, creds)
}
