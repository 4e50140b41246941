// Package box implements the storage addon imp for Box.com: listing
// folder contents, fetching item metadata, and downloading file content
// against the Box v2.0 REST API.
package box

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

const ImpKey = "box"

const defaultPageSize = 100

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

// Imp implements addon.StorageImp against Box.
type Imp struct {
	requestor *gvhttp.Requestor
	rootID    string
}

// New is this provider's addon.Constructor.
func New(requestor *gvhttp.Requestor, cfgAddon domain.ConfiguredAddon) addon.Imp {
	root := cfgAddon.RootFolderID
	if root == "" {
		root = "0" // Box's own id for "All Files"
	}
	return Imp{requestor: requestor, rootID: root}
}

func (Imp) ImpKey() string { return ImpKey }

type boxItemEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type boxFolderItems struct {
	Entries    []boxItemEntry `json:"entries"`
	TotalCount int            `json:"total_count"`
}

func (i Imp) ListChildItems(ctx context.Context, parentID string, page cursor.Cursor) (addon.ItemPage, error) {
	if parentID == "" {
		parentID = i.rootID
	}
	offset, limit := 0, defaultPageSize
	if oc, ok := page.(cursor.OffsetCursor); ok {
		offset, limit = oc.Offset, oc.Limit
	}

	resp, err := i.requestor.Get(ctx, fmt.Sprintf("folders/%s/items", parentID), url.Values{
		"offset": {strconv.Itoa(offset)},
		"limit":  {strconv.Itoa(limit)},
		"fields": {"id,name,type,size"},
	})
	if err != nil {
		return addon.ItemPage{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.ItemPage{}, errors.NewProviderError("box: listing folder items failed", resp.StatusCode, nil)
	}

	var parsed boxFolderItems
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return addon.ItemPage{}, errors.NewUnexpectedAddonError("box: decoding folder items response", err)
	}

	items := make([]addon.Item, 0, len(parsed.Entries))
	for _, e := range parsed.Entries {
		items = append(items, addon.Item{ID: e.ID, Name: e.Name, IsFolder: e.Type == "folder", Size: e.Size})
	}

	this := cursor.OffsetCursor{Offset: offset, Limit: limit, TotalCount: parsed.TotalCount}
	first := cursor.OffsetCursor{Offset: 0, Limit: limit, TotalCount: parsed.TotalCount}
	var next, prev cursor.Cursor
	if offset+len(items) < parsed.TotalCount {
		next = cursor.OffsetCursor{Offset: offset + limit, Limit: limit, TotalCount: parsed.TotalCount}
	}
	if offset > 0 {
		prevOffset := offset - limit
		if prevOffset < 0 {
			prevOffset = 0
		}
		prev = cursor.OffsetCursor{Offset: prevOffset, Limit: limit, TotalCount: parsed.TotalCount}
	}
	return addon.ItemPage{Items: items, SamplePage: addon.NewSamplePage(this, first, next, prev, parsed.TotalCount)}, nil
}

func (i Imp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("files/%s", itemID), url.Values{"fields": {"id,name,type,size"}})
	if err != nil {
		return addon.Item{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.Item{}, errors.NewProviderError("box: fetching item info failed", resp.StatusCode, nil)
	}

	var entry boxItemEntry
	if err := json.Unmarshal(resp.Body, &entry); err != nil {
		return addon.Item{}, errors.NewUnexpectedAddonError("box: decoding item info response", err)
	}
	return addon.Item{ID: entry.ID, Name: entry.Name, IsFolder: entry.Type == "folder", Size: entry.Size}, nil
}

func (i Imp) DownloadItem(ctx context.Context, itemID string) ([]byte, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("files/%s/content", itemID), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errors.NewProviderError("box: downloading item failed", resp.StatusCode, nil)
	}
	return resp.Body, nil
}

func asStorageImp(imp addon.Imp) (addon.StorageImp, error) {
	s, ok := imp.(addon.StorageImp)
	if !ok {
		return nil, errors.NewUnexpectedAddonError("box: constructed imp does not implement StorageImp", nil)
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
