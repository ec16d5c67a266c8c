package lalmax

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

func TestGetSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "stream_name=live/cam01") {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	e := NewEngine().SetConfig(Config{URL: srv.URL})
	data, err := e.GetSnapshot(context.Background(), "live/cam01")
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != len(pngHeader) || data[1] != 'P' {
		t.Fatalf("unexpected body: %v", data)
	}
}

func TestGetSnapshotJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":11001,"msg":"group不存在"}`))
	}))
	defer srv.Close()

	e := NewEngine().SetConfig(Config{URL: srv.URL})
	if _, err := e.GetSnapshot(context.Background(), "live/miss"); err == nil {
		t.Fatal("want error for json error body")
	}
}

func TestGetSnapshotMissingStream(t *testing.T) {
	e := NewEngine()
	if _, err := e.GetSnapshot(context.Background(), ""); err == nil {
		t.Fatal("want error for empty stream name")
	}
}
