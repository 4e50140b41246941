// Package zenodo implements the link addon imp for a Zenodo deposit:
// resolving a deposit id to its canonical, publicly resolvable URL (the
// deposit's DOI landing page once published, its draft API URL otherwise).
// resolve_link is a redirect-mode operation: the caller is expected to
// 302 its end user to the resolved URL rather than consume it as data.
package zenodo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

const ImpKey = "zenodo"

func init() {
	addon.Register(ImpKey, New,
		addon.OperationEntry{
			Declaration: domain.OperationDeclaration{Name: "resolve_link", RequiredCapability: domain.CapAccess, Mode: domain.ModeRedirect, ArgsShape: addon.ResolveLinkArgs{}},
			Invoke:      invokeResolveLink,
		},
	)
}

// Imp implements addon.LinkImp against Zenodo's deposit API.
type Imp struct {
	requestor *gvhttp.Requestor
}

func New(requestor *gvhttp.Requestor, cfgAddon domain.ConfiguredAddon) addon.Imp {
	return Imp{requestor: requestor}
}

func (Imp) ImpKey() string { return ImpKey }

type depositRecord struct {
	DOI    string `json:"doi"`
	Links  struct {
		Self string `json:"self"`
		HTML string `json:"html"`
	} `json:"links"`
	Submitted bool `json:"submitted"`
}

// ResolveLink returns the deposit's DOI landing page once it has been
// submitted/published, and falls back to the draft record's own API URL
// while it is still unpublished.
func (i Imp) ResolveLink(ctx context.Context, depositID string) (string, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("deposit/depositions/%s", depositID), nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", errors.NewProviderError("zenodo: fetching deposit record failed", resp.StatusCode, nil)
	}

	var record depositRecord
	if err := json.Unmarshal(resp.Body, &record); err != nil {
		return "", errors.NewUnexpectedAddonError("zenodo: decoding deposit record response", err)
	}

	if record.Submitted && record.Links.HTML != "" {
		return record.Links.HTML, nil
	}
	if record.Links.Self != "" {
		return record.Links.Self, nil
	}
	return "", errors.NewProviderError("zenodo: deposit record has no resolvable link", resp.StatusCode, nil)
}

func asLinkImp(imp addon.Imp) (addon.LinkImp, error) {
	l, ok := imp.(addon.LinkImp)
	if !ok {
		return nil, errors.NewUnexpectedAddonError("zenodo: constructed imp does not implement LinkImp", nil)
	}
	return l, nil
}

// The Invocation Engine binds args against the operation's declared
// ArgsShape before this runs, so deposit_id is always present and a string.
func invokeResolveLink(ctx context.Context, imp addon.Imp, args map[string]any) (any, error) {
	l, err := asLinkImp(imp)
	if err != nil {
		return nil, err
	}
	depositID := args["deposit_id"].(string)
	return l.ResolveLink(ctx, depositID)
}
