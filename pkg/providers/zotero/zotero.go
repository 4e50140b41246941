// Package zotero implements the citation addon imp for a Zotero library
// or collection: listing bibliographic items via the Zotero Web API.
package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/cursor"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

const ImpKey = "zotero"

const defaultPageSize = 50

func init() {
	addon.Register(ImpKey, New,
		addon.OperationEntry{
			Declaration: domain.OperationDeclaration{Name: "list_citations", RequiredCapability: domain.CapAccess, Mode: domain.ModeImmediate, ArgsShape: addon.ListCitationsArgs{}},
			Invoke:      invokeListCitations,
		},
	)
}

// Imp implements addon.CitationImp against a single Zotero library,
// optionally scoped to one collection.
type Imp struct {
	requestor    *gvhttp.Requestor
	libraryID    string
	collectionID string
}

func New(requestor *gvhttp.Requestor, cfgAddon domain.ConfiguredAddon) addon.Imp {
	return Imp{
		requestor:    requestor,
		libraryID:    cfgAddon.Account.RemoteAccountID,
		collectionID: cfgAddon.RootFolderID,
	}
}

func (Imp) ImpKey() string { return ImpKey }

type zoteroItem struct {
	Key  string         `json:"key"`
	Data map[string]any `json:"data"`
}

func (i Imp) ListCitations(ctx context.Context, collectionID string, page cursor.Cursor) (addon.CitationPage, error) {
	if collectionID == "" {
		collectionID = i.collectionID
	}
	offset, limit := 0, defaultPageSize
	if oc, ok := page.(cursor.OffsetCursor); ok {
		offset, limit = oc.Offset, oc.Limit
	}

	path := fmt.Sprintf("users/%s/items", i.libraryID)
	if collectionID != "" {
		path = fmt.Sprintf("users/%s/collections/%s/items", i.libraryID, collectionID)
	}

	resp, err := i.requestor.Get(ctx, path, url.Values{
		"start": {strconv.Itoa(offset)},
		"limit": {strconv.Itoa(limit)},
	})
	if err != nil {
		return addon.CitationPage{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.CitationPage{}, errors.NewProviderError("zotero: listing items failed", resp.StatusCode, nil)
	}

	var entries []zoteroItem
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return addon.CitationPage{}, errors.NewUnexpectedAddonError("zotero: decoding items response", err)
	}

	citations := make([]addon.Citation, 0, len(entries))
	for _, e := range entries {
		title, _ := e.Data["title"].(string)
		citations = append(citations, addon.Citation{ID: e.Key, Title: title, CSL: e.Data})
	}

	this := cursor.OffsetCursor{Offset: offset, Limit: limit}
	first := cursor.OffsetCursor{Offset: 0, Limit: limit}
	var next, prev cursor.Cursor
	if len(entries) == limit {
		next = cursor.OffsetCursor{Offset: offset + limit, Limit: limit}
	}
	if offset > 0 {
		prevOffset := offset - limit
		if prevOffset < 0 {
			prevOffset = 0
		}
		prev = cursor.OffsetCursor{Offset: prevOffset, Limit: limit}
	}
	return addon.CitationPage{Citations: citations, SamplePage: addon.NewSamplePage(this, first, next, prev, 0)}, nil
}

func asCitationImp(imp addon.Imp) (addon.CitationImp, error) {
	c, ok := imp.(addon.CitationImp)
	if !ok {
		return nil, errors.NewUnexpectedAddonError("zotero: constructed imp does not implement CitationImp", nil)
	}
	return c, nil
}

func invokeListCitations(ctx context.Context, imp addon.Imp, args map[string]any) (any, error) {
	c, err := asCitationImp(imp)
	if err != nil {
		return nil, err
	}
	collectionID, _ := args["collection_id"].(string)
	page, err := parsePageArg(args)
	if err != nil {
		return nil, err
	}
	return c.ListCitations(ctx, collectionID, page)
}

func parsePageArg(args map[string]any) (cursor.Cursor, error) {
	raw, _ := args["cursor"].(string)
	return cursor.ParsePage(raw, defaultPageSize)
}
