// Package gitlab implements the storage addon imp for a GitLab project's
// repository tree: listing directory entries, fetching blob metadata, and
// downloading raw file content via the GitLab REST API.
package gitlab

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

const ImpKey = "gitlab"

const defaultPageSize = 50

func init() {
	addon.Register(ImpKey, New,
		addon.OperationEntry{
			Declaration: domain.OperationDeclaration{Name: "list_child_items", RequiredCapability: domain.CapAccess, Mode: domain.ModeImmediate, ArgsShape: addon.ListChildItemsArgs{}},
			Invoke:      invokeListChildItems,
		},
		addon.OperationEntry{
			Declaration: domain.OperationDeclaration{Name: "get_item_info", RequiredCapability: domain.CapAccess, Mode: domain.ModeImmediate, ArgsShape: addon.ItemIDArgs{}},
			Invoke:      invokeGetItemInfo,
		},
		addon.OperationEntry{
			Declaration: domain.OperationDeclaration{Name: "download_item", RequiredCapability: domain.CapAccess, Mode: domain.ModeImmediate, ArgsShape: addon.ItemIDArgs{}},
			Invoke:      invokeDownloadItem,
		},
	)
}

// Imp implements addon.StorageImp against a single GitLab project's
// repository, identified by projectID and a pinned ref (branch or tag).
type Imp struct {
	requestor *gvhttp.Requestor
	projectID string
	ref       string
}

func New(requestor *gvhttp.Requestor, cfgAddon domain.ConfiguredAddon) addon.Imp {
	ref := cfgAddon.RootFolderID
	if ref == "" {
		ref = "main"
	}
	return Imp{requestor: requestor, projectID: cfgAddon.Account.RemoteAccountID, ref: ref}
}

func (Imp) ImpKey() string { return ImpKey }

type treeEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "blob" or "tree"
	Path string `json:"path"`
}

func (i Imp) ListChildItems(ctx context.Context, parentID string, page cursor.Cursor) (addon.ItemPage, error) {
	offset, limit := 0, defaultPageSize
	if oc, ok := page.(cursor.OffsetCursor); ok {
		offset, limit = oc.Offset, oc.Limit
	}
	query := url.Values{
		"ref":      {i.ref},
		"per_page": {strconv.Itoa(limit)},
		"page":     {strconv.Itoa(offset/limit + 1)},
	}
	if parentID != "" {
		query.Set("path", parentID)
	}

	resp, err := i.requestor.Get(ctx, fmt.Sprintf("projects/%s/repository/tree", i.projectID), query)
	if err != nil {
		return addon.ItemPage{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.ItemPage{}, errors.NewProviderError("gitlab: listing repository tree failed", resp.StatusCode, nil)
	}

	var entries []treeEntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		return addon.ItemPage{}, errors.NewUnexpectedAddonError("gitlab: decoding repository tree response", err)
	}

	items := make([]addon.Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, addon.Item{ID: e.Path, Name: e.Name, IsFolder: e.Type == "tree"})
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
	return addon.ItemPage{Items: items, SamplePage: addon.NewSamplePage(this, first, next, prev, 0)}, nil
}

func (i Imp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("projects/%s/repository/files/%s", i.projectID, url.PathEscape(itemID)), url.Values{"ref": {i.ref}})
	if err != nil {
		return addon.Item{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.Item{}, errors.NewProviderError("gitlab: fetching file metadata failed", resp.StatusCode, nil)
	}

	var parsed struct {
		FileName string `json:"file_name"`
		Size     int64  `json:"size"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return addon.Item{}, errors.NewUnexpectedAddonError("gitlab: decoding file metadata response", err)
	}
	return addon.Item{ID: itemID, Name: parsed.FileName, Size: parsed.Size}, nil
}

func (i Imp) DownloadItem(ctx context.Context, itemID string) ([]byte, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("projects/%s/repository/files/%s/raw", i.projectID, url.PathEscape(itemID)), url.Values{"ref": {i.ref}})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errors.NewProviderError("gitlab: downloading raw file failed", resp.StatusCode, nil)
	}
	return resp.Body, nil
}

func asStorageImp(imp addon.Imp) (addon.StorageImp, error) {
	s, ok := imp.(addon.StorageImp)
	if !ok {
		return nil, errors.NewUnexpectedAddonError("gitlab: constructed imp does not implement StorageImp", nil)
	}
	return s, nil
}

// The Invocation Engine binds args against the operation's declared
// ArgsShape before this runs, so item_id is always present and a string.
func invokeListChildItems(ctx context.Context, imp addon.Imp, args map[string]any) (any, error) {
	s, err := asStorageImp(imp)
	if err != nil {
		return nil, err
	}
	parentID, _ := args["parent_id"].(string)
	page, err := parsePageArg(args)
	if err != nil {
		return nil, err
	}
	return s.ListChildItems(ctx, parentID, page)
}

func invokeGetItemInfo(ctx context.Context, imp addon.Imp, args map[string]any) (any, error) {
	s, err := asStorageImp(imp)
	if err != nil {
		return nil, err
	}
	itemID := args["item_id"].(string)
	return s.GetItemInfo(ctx, itemID)
}

func invokeDownloadItem(ctx context.Context, imp addon.Imp, args map[string]any) (any, error) {
	s, err := asStorageImp(imp)
	if err != nil {
		return nil, err
	}
	itemID := args["item_id"].(string)
	return s.DownloadItem(ctx, itemID)
}

func parsePageArg(args map[string]any) (cursor.Cursor, error) {
	raw, _ := args["cursor"].(string)
	return cursor.ParsePage(raw, defaultPageSize)
}
