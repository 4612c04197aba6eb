package magento

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/technoetl/bulkmedia/internal/ingest"
)

func testEntry() ingest.MediaEntry {
	return ingest.MediaEntry{
		MediaType: "image",
		Label:     "photo",
		Position:  0,
		Types:     []string{"image", "small_image", "thumbnail"},
		Content: ingest.MediaContent{
			Base64EncodedData: "aW1n",
			Type:              "image/jpeg",
			Name:              "photo.jpg",
		},
	}
}

func TestUploadProductMedia(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte("4711"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token", time.Second)
	id, err := c.UploadProductMedia(context.Background(), "A1", testEntry())
	if err != nil {
		t.Fatalf("UploadProductMedia: %v", err)
	}

	if id != "4711" {
		t.Errorf("id = %q, want 4711", id)
	}
	if gotPath != "/rest/V1/products/A1/media" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth = %q", gotAuth)
	}

	entry, ok := gotBody["entry"].(map[string]any)
	if !ok {
		t.Fatalf("body missing entry envelope: %v", gotBody)
	}
	if entry["media_type"] != "image" || entry["label"] != "photo" {
		t.Errorf("entry = %v", entry)
	}
	if entry["disabled"] != false {
		t.Errorf("disabled = %v, want false", entry["disabled"])
	}
}

func TestUploadProductMediaEscapesSKU(t *testing.T) {
	var gotEscaped string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEscaped = r.URL.EscapedPath()
		w.Write([]byte("1"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	if _, err := c.UploadProductMedia(context.Background(), "SKU/WITH SPACE", testEntry()); err != nil {
		t.Fatalf("UploadProductMedia: %v", err)
	}
	if strings.Contains(gotEscaped, " ") || strings.Count(gotEscaped, "/") != 5 {
		t.Errorf("escaped path = %q", gotEscaped)
	}
}

func TestUploadProductMediaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"The product doesn't exist."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	_, err := c.UploadProductMedia(context.Background(), "GONE", testEntry())
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "The product doesn't exist.") {
		t.Errorf("err = %v, want Magento message surfaced", err)
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want status code surfaced", err)
	}
}

func TestUploadProductMediaPlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t", time.Second)
	_, err := c.UploadProductMedia(context.Background(), "A1", testEntry())
	if err == nil || !strings.Contains(err.Error(), "HTTP 502") {
		t.Errorf("err = %v, want HTTP 502", err)
	}
}

func TestUploadProductMediaContextCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewClient(srv.URL, "t", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.UploadProductMedia(ctx, "A1", testEntry()); err == nil {
		t.Fatal("expected context deadline error")
	}
}
