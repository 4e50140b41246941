package gitlab

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cos/gravyvalet/pkg/credentials"
	"github.com/cos/gravyvalet/pkg/cursor"
	"github.com/cos/gravyvalet/pkg/domain"
	"github.com/cos/gravyvalet/pkg/gvhttp"
)

func newTestImp(t *testing.T, handler http.HandlerFunc) Imp {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds, _ := credentials.NewAccessToken("tok")
	requestor, err := gvhttp.New(srv.Client(), srv.URL+"/", creds)
	if err != nil {
		t.Fatalf("gvhttp.New() error = %v", err)
	}
	imp, ok := New(requestor, domain.ConfiguredAddon{Account: domain.AuthorizedAccount{RemoteAccountID: "123"}}).(Imp)
	if !ok {
		t.Fatal("New() did not return a gitlab.Imp")
	}
	return imp
}

func TestListChildItems(t *testing.T) {
	imp := newTestImp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/123/repository/tree" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"a1","name":"README.md","type":"blob","path":"README.md"},{"id":"a2","name":"src","type":"tree","path":"src"}]`))
	})

	page, err := imp.ListChildItems(context.Background(), "", cursor.OffsetCursor{Offset: 0, Limit: 50})
	if err != nil {
		t.Fatalf("ListChildItems() error = %v", err)
	}
	if len(page.Items) != 2 || page.Items[1].IsFolder != true {
		t.Errorf("Items = %+v", page.Items)
	}
}

func TestDownloadItem(t *testing.T) {
	imp := newTestImp(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file contents"))
	})

	got, err := imp.DownloadItem(context.Background(), "README.md")
	if err != nil {
		t.Fatalf("DownloadItem() error = %v", err)
	}
	if string(got) != "file contents" {
		t.Errorf("DownloadItem() = %q", got)
	}
}
