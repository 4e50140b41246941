// Package addon implements the Operation Declaration & Registry and the
// Addon Instance Factory: the mapping from an ExternalService's
// AddonImpKey to a concrete Go type implementing its operations, and the
// declaration table describing each operation's capability and execution
// mode. Imps register their operations explicitly in an init func, which
// the type checker verifies at compile time rather than discovering
// overridden operations by reflection at import time.
package addon

import (
	"context"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/cursor"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

// Imp is implemented by every provider package in pkg/providers. New
// constructs one bound to a specific account's requestor and config.
type Imp interface {
	// ImpKey returns the addon registry key this type is registered
	// under, e.g. "box".
	ImpKey() string
}

// Constructor builds an Imp bound to requestor and the addon's config.
// Use this shape (NetworkRequestorProvider) for providers that speak
// plain REST through the pinned, retrying Requestor.
type Constructor func(requestor *gvhttp.Requestor, addon domain.ConfiguredAddon) Imp

// ClientConstructor builds an Imp directly from decrypted credentials,
// bypassing Requestor entirely (ClientRequestorProvider), for providers
// whose own SDK client already owns transport, auth, and retries.
type ClientConstructor func(creds credentials.Credentials, addon domain.ConfiguredAddon) Imp

// StorageImp is the operation surface for storage-provider imps (box,
// gitlab, dataverse): listing and fetching files/folders.
type StorageImp interface {
	Imp
	ListChildItems(ctx context.Context, parentID string, page cursor.Cursor) (ItemPage, error)
	GetItemInfo(ctx context.Context, itemID string) (Item, error)
	DownloadItem(ctx context.Context, itemID string) ([]byte, error)
}

// CitationImp is the operation surface for citation-manager imps (zotero).
type CitationImp interface {
	Imp
	ListCitations(ctx context.Context, collectionID string, page cursor.Cursor) (CitationPage, error)
}

// LinkImp is the operation surface for link-resolver imps (zenodo): a
// single deposit resolves to a canonical, resolvable URL.
type LinkImp interface {
	Imp
	ResolveLink(ctx context.Context, depositID string) (string, error)
}

// Item describes a single file or folder a storage provider returned.
type Item struct {
	ID       string
	Name     string
	IsFolder bool
	Size     int64
}

// SamplePage is the pagination envelope every paginated operation returns
// (the spec's ItemSampleResult shape), embedded into ItemPage and
// CitationPage. Cursor fields are pre-serialized opaque strings, not raw
// cursor.Cursor values: marshaling a cursor.Cursor interface directly
// would leak its concrete struct's fields to callers instead of the
// opaque wire string the cursor package defines.
type SamplePage struct {
	TotalCount        *int   `json:"total_count,omitempty"`
	ThisSampleCursor  string `json:"this_sample_cursor"`
	NextSampleCursor  string `json:"next_sample_cursor,omitempty"`
	PrevSampleCursor  string `json:"prev_sample_cursor,omitempty"`
	FirstSampleCursor string `json:"first_sample_cursor"`
}

// NewSamplePage serializes this/first (always present) and next/prev
// (nil-able; a nil cursor means "no such page") into a SamplePage.
// totalCount <= 0 means unknown and is omitted from the result.
func NewSamplePage(this, first, next, prev cursor.Cursor, totalCount int) SamplePage {
	sp := SamplePage{ThisSampleCursor: this.Serialize(), FirstSampleCursor: first.Serialize()}
	if totalCount > 0 {
		tc := totalCount
		sp.TotalCount = &tc
	}
	if next != nil {
		sp.NextSampleCursor = next.Serialize()
	}
	if prev != nil {
		sp.PrevSampleCursor = prev.Serialize()
	}
	return sp
}

// ItemPage is one page of Items plus its SamplePage pagination envelope.
type ItemPage struct {
	Items []Item `json:"items"`
	SamplePage
}

// Citation is a single bibliographic record.
type Citation struct {
	ID    string
	Title string
	CSL   map[string]any
}

// CitationPage is one page of Citations plus its SamplePage pagination
// envelope.
type CitationPage struct {
	Citations []Citation `json:"citations"`
	SamplePage
}

// validateCredentialsKind is a helper imps use to fail fast with a typed
// error instead of a panic when an account's credentials don't match the
// shape the imp expects (e.g. a storage imp wired to OAuth1 credentials).
func validateCredentialsKind(got credentials.Kind, want credentials.Kind) error {
	if got != want {
		return errors.NewUnexpectedAddonError("account credentials do not match the kind this provider expects", nil)
	}
	return nil
}
