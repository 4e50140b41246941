package addon

// The shapes below are the declared argument structs for every operation
// the network providers register. Every provider implementing
// list_child_items/get_item_info/download_item/list_citations/
// resolve_link binds its arguments against the same shape, since the
// operation's parameters are identical across providers even though the
// handler behind it is not. A provider whose operation genuinely needs
// different parameters declares its own shape instead of reusing these.

// ListChildItemsArgs is the parameter shape for list_child_items:
// ParentID selects the folder/collection to list (the provider's root if
// empty), Cursor resumes a prior page.
type ListChildItemsArgs struct {
	ParentID string `json:"parent_id,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
}

// ItemIDArgs is the parameter shape for get_item_info and download_item:
// a single required item identifier.
type ItemIDArgs struct {
	ItemID string `json:"item_id" jsonschema:"minLength=1"`
}

// ListCitationsArgs is the parameter shape for list_citations: CollectionID
// scopes the listing to one collection within the library (the whole
// library if empty), Cursor resumes a prior page.
type ListCitationsArgs struct {
	CollectionID string `json:"collection_id,omitempty"`
	Cursor       string `json:"cursor,omitempty"`
}

// ResolveLinkArgs is the parameter shape for resolve_link: a single
// required deposit identifier.
type ResolveLinkArgs struct {
	DepositID string `json:"deposit_id" jsonschema:"minLength=1"`
}
