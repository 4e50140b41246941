// Package dataverse implements the storage addon imp for a Dataverse
// dataset: listing its files as a single flat page (Dataverse has no
// folder hierarchy within a dataset) and fetching/downloading individual
// files via the Dataverse native API.
package dataverse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/cursor"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

const ImpKey = "dataverse"

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

// Imp implements addon.StorageImp against a single pinned Dataverse
// dataset, identified by its persistent id (DOI/Handle).
type Imp struct {
	requestor    *gvhttp.Requestor
	persistentID string
}

func New(requestor *gvhttp.Requestor, cfgAddon domain.ConfiguredAddon) addon.Imp {
	return Imp{requestor: requestor, persistentID: cfgAddon.RootFolderID}
}

func (Imp) ImpKey() string { return ImpKey }

type datasetFile struct {
	DataFile struct {
		ID          string `json:"id"`
		Filename    string `json:"filename"`
		FileSize    int64  `json:"filesize"`
	} `json:"dataFile"`
}

type datasetVersion struct {
	Data struct {
		LatestVersion struct {
			Files []datasetFile `json:"files"`
		} `json:"latestVersion"`
	} `json:"data"`
}

// ListChildItems always returns the whole dataset's files as a single
// page: Dataverse exposes no native pagination at the dataset-version
// level, so any cursor other than an offset cursor at offset 0 is an
// error: there is no "next".
func (i Imp) ListChildItems(ctx context.Context, parentID string, page cursor.Cursor) (addon.ItemPage, error) {
	if page != nil {
		if oc, ok := page.(cursor.OffsetCursor); !ok || oc.Offset != 0 {
			return addon.ItemPage{}, errors.NewInvalidArguments("dataverse: dataset file listing is not paginated", nil)
		}
	}

	resp, err := i.requestor.Get(ctx, fmt.Sprintf("datasets/:persistentId/?persistentId=%s", i.persistentID), nil)
	if err != nil {
		return addon.ItemPage{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.ItemPage{}, errors.NewProviderError("dataverse: fetching dataset version failed", resp.StatusCode, nil)
	}

	var parsed datasetVersion
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return addon.ItemPage{}, errors.NewUnexpectedAddonError("dataverse: decoding dataset version response", err)
	}

	items := make([]addon.Item, 0, len(parsed.Data.LatestVersion.Files))
	for _, f := range parsed.Data.LatestVersion.Files {
		items = append(items, addon.Item{ID: f.DataFile.ID, Name: f.DataFile.Filename, Size: f.DataFile.FileSize})
	}

	whole := cursor.OffsetCursor{Offset: 0, Limit: len(items), TotalCount: len(items)}
	return addon.ItemPage{Items: items, SamplePage: addon.NewSamplePage(whole, whole, nil, nil, len(items))}, nil
}

func (i Imp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("files/%s/metadata", itemID), nil)
	if err != nil {
		return addon.Item{}, err
	}
	if resp.StatusCode >= 400 {
		return addon.Item{}, errors.NewProviderError("dataverse: fetching file metadata failed", resp.StatusCode, nil)
	}

	var parsed struct {
		Label    string `json:"label"`
		FileSize int64  `json:"fileSize"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return addon.Item{}, errors.NewUnexpectedAddonError("dataverse: decoding file metadata response", err)
	}
	return addon.Item{ID: itemID, Name: parsed.Label, Size: parsed.FileSize}, nil
}

func (i Imp) DownloadItem(ctx context.Context, itemID string) ([]byte, error) {
	resp, err := i.requestor.Get(ctx, fmt.Sprintf("access/datafile/%s", itemID), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, errors.NewProviderError("dataverse: downloading file failed", resp.StatusCode, nil)
	}
	return resp.Body, nil
}

func asStorageImp(imp addon.Imp) (addon.StorageImp, error) {
	s, ok := imp.(addon.StorageImp)
	if !ok {
		return nil, errors.NewUnexpectedAddonError("dataverse: constructed imp does not implement StorageImp", nil)
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
	return s.ListChildItems(ctx, parentID, nil)
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
