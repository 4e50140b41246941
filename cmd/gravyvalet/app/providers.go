package app

// Blank-importing each provider package runs its init(), which registers
// the provider's operation declarations and dispatcher with pkg/addon.
// Nothing in this file is called directly; the registration side effect
// is the point.
import (
	_ "github.com/cos/gravyvalet/pkg/providers/blarg"
	_ "github.com/cos/gravyvalet/pkg/providers/box"
	_ "github.com/cos/gravyvalet/pkg/providers/dataverse"
	_ "github.com/cos/gravyvalet/pkg/providers/gitlab"
	_ "github.com/cos/gravyvalet/pkg/providers/zenodo"
	_ "github.com/cos/gravyvalet/pkg/providers/zotero"
)
