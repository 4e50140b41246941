// Package blarg implements a demo storage addon imp with an in-memory
// backend, used by end-to-end tests to exercise the full invocation stack
// without a real third-party API. It registers via RegisterClient: its
// client field stands in for a third-party SDK client built straight from
// credentials rather than routed through a Requestor, to exercise the
// ClientRequestorProvider construction shape.
package blarg

import (
	"context"
	"sort"
	"sync"

	"github.com/cos/gravyvalet/pkg/addon"
	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/cursor"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/errors"
)

const ImpKey = "blarg"

const defaultPageSize = 10

func init() {
	addon.RegisterClient(ImpKey, New,
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

// client stands in for the hand-built SDK client a real
// ClientRequestorProvider would construct from creds; blarg's is an
// in-memory fixture store instead of a network client.
type client struct {
	mu    sync.Mutex
	files map[string]blargFile
}

type blargFile struct {
	id, name, parentID string
	content            []byte
}

func newFixtureClient() *client {
	return &client{files: map[string]blargFile{
		"root/hello.txt": {id: "root/hello.txt", name: "hello.txt", content: []byte("hello from blarg")},
		"root/notes.md":  {id: "root/notes.md", name: "notes.md", content: []byte("# notes\n\nblarg demo fixture")},
		"root/empty.bin": {id: "root/empty.bin", name: "empty.bin", content: []byte{}},
	}}
}

// Imp implements addon.StorageImp against the in-memory client.
type Imp struct {
	client *client
}

// New is this provider's addon.ClientConstructor: it ignores addon's
// network configuration entirely since the backing "client" here never
// leaves the process.
func New(creds credentials.Credentials, cfgAddon domain.ConfiguredAddon) addon.Imp {
	return Imp{client: newFixtureClient()}
}

func (Imp) ImpKey() string { return ImpKey }

func (i Imp) ListChildItems(ctx context.Context, parentID string, page cursor.Cursor) (addon.ItemPage, error) {
	offset, limit := 0, defaultPageSize
	if oc, ok := page.(cursor.OffsetCursor); ok {
		offset, limit = oc.Offset, oc.Limit
	}

	i.client.mu.Lock()
	ids := make([]string, 0, len(i.client.files))
	for id := range i.client.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	files := make([]blargFile, 0, len(ids))
	for _, id := range ids {
		files = append(files, i.client.files[id])
	}
	i.client.mu.Unlock()

	end := offset + limit
	if end > len(files) {
		end = len(files)
	}
	if offset > len(files) {
		offset = len(files)
	}

	items := make([]addon.Item, 0, end-offset)
	for _, f := range files[offset:end] {
		items = append(items, addon.Item{ID: f.id, Name: f.name, Size: int64(len(f.content))})
	}

	total := len(files)
	this := cursor.OffsetCursor{Offset: offset, Limit: limit, TotalCount: total}
	first := cursor.OffsetCursor{Offset: 0, Limit: limit, TotalCount: total}
	var next, prev cursor.Cursor
	if end < total {
		next = cursor.OffsetCursor{Offset: end, Limit: limit, TotalCount: total}
	}
	if offset > 0 {
		prevOffset := offset - limit
		if prevOffset < 0 {
			prevOffset = 0
		}
		prev = cursor.OffsetCursor{Offset: prevOffset, Limit: limit, TotalCount: total}
	}
	return addon.ItemPage{Items: items, SamplePage: addon.NewSamplePage(this, first, next, prev, total)}, nil
}

func (i Imp) GetItemInfo(ctx context.Context, itemID string) (addon.Item, error) {
	i.client.mu.Lock()
	f, ok := i.client.files[itemID]
	i.client.mu.Unlock()
	if !ok {
		return addon.Item{}, errors.NewProviderError("blarg: no such item", 404, nil)
	}
	return addon.Item{ID: f.id, Name: f.name, Size: int64(len(f.content))}, nil
}

func (i Imp) DownloadItem(ctx context.Context, itemID string) ([]byte, error) {
	i.client.mu.Lock()
	f, ok := i.client.files[itemID]
	i.client.mu.Unlock()
	if !ok {
		return nil, errors.NewProviderError("blarg: no such item", 404, nil)
	}
	return f.content, nil
}

func asStorageImp(imp addon.Imp) (addon.StorageImp, error) {
	s, ok := imp.(addon.StorageImp)
	if !ok {
		return nil, errors.NewUnexpectedAddonError("blarg: constructed imp does not implement StorageImp", nil)
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
