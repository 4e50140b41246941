package zotero

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

	creds, err := credentials.NewAccessToken("tok")
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	requestor, err := gvhttp.New(srv.Client(), srv.URL+"/", creds)
	if err != nil {
		t.Fatalf("gvhttp.New() error = %v", err)
	}
	imp, ok := New(requestor, domain.ConfiguredAddon{Account: domain.AuthorizedAccount{RemoteAccountID: "999"}}).(Imp)
	if !ok {
		t.Fatal("New() did not return a zotero.Imp")
	}
	return imp
}

func TestListCitations(t *testing.T) {
	imp := newTestImp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/999/items" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`[{"key":"AB12","data":{"title":"A Paper About Things"}}]`))
	})

	page, err := imp.ListCitations(context.Background(), "", cursor.OffsetCursor{Offset: 0, Limit: 50})
	if err != nil {
		t.Fatalf("ListCitations() error = %v", err)
	}
	if len(page.Citations) != 1 || page.Citations[0].Title != "A Paper About Things" {
		t.Errorf("Citations = %+v", page.Citations)
	}
	if page.NextSampleCursor != "" {
		t.Errorf("NextSampleCursor = %q, want \"\"", page.NextSampleCursor)
	}
}

func TestListCitations_ScopedToCollection(t *testing.T) {
	imp := newTestImp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/999/collections/COLL1/items" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`[]`))
	})

	if _, err := imp.ListCitations(context.Background(), "COLL1", nil); err != nil {
		t.Fatalf("ListCitations() error = %v", err)
	}
}
