package gvhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cos/gravyvalet/pkg/credentials"
)

func TestRequestor_Send_AttachesCredentials(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tok, err := credentials.NewAccessToken("secret-token")
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	r, err := New(srv.Client(), srv.URL+"/", tok)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := r.Get(context.Background(), "items", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer secret-token")
	}
}

func TestRequestor_Resolve_RejectsEscapingPrefix(t *testing.T) {
	r, err := New(nil, "https://api.example.com/v1/", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []string{
		"https://evil.example.com/steal",
		"//evil.example.com/steal",
		"../../admin",
	}

	for _, relative := range tests {
		t.Run(relative, func(t *testing.T) {
			if _, err := r.resolve(relative); err == nil {
				t.Errorf("resolve(%q) want error, got nil", relative)
			}
		})
	}
}

func TestRequestor_Resolve_AllowsPinnedRelativePaths(t *testing.T) {
	r, err := New(nil, "https://api.example.com/v1/", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resolved, err := r.resolve("folders/123/items")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	want := "https://api.example.com/v1/folders/123/items"
	if resolved.String() != want {
		t.Errorf("resolve() = %q, want %q", resolved.String(), want)
	}
}

func TestRequestor_Send_NoCredentialsOmitsAuthHeader(t *testing.T) {
	var sawAuth bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, err := New(srv.Client(), srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := r.Get(context.Background(), "public", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sawAuth {
		t.Error("Authorization header present when no credentials were configured")
	}
}

func TestRequestor_MethodHelpers_SendExpectedVerb(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, err := New(srv.Client(), srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name string
		call func() (*Response, error)
		want string
	}{
		{"Put", func() (*Response, error) { return r.Put(context.Background(), "x", nil, nil) }, http.MethodPut},
		{"Patch", func() (*Response, error) { return r.Patch(context.Background(), "x", nil, nil) }, http.MethodPatch},
		{"Delete", func() (*Response, error) { return r.Delete(context.Background(), "x") }, http.MethodDelete},
		{"Head", func() (*Response, error) { return r.Head(context.Background(), "x", nil) }, http.MethodHead},
		{"Options", func() (*Response, error) { return r.Options(context.Background(), "x") }, http.MethodOptions},
		{"Propfind", func() (*Response, error) { return r.Propfind(context.Background(), "x", nil, nil) }, "PROPFIND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.call(); err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}
			if gotMethod != tt.want {
				t.Errorf("method = %q, want %q", gotMethod, tt.want)
			}
		})
	}
}
