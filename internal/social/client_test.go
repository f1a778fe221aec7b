package social

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"miniapp-server/internal/domain"
)

func TestCastPublishesTextWithEmbeds(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/farcaster/cast" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"cast":{"hash":"0xcast123"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Options{BaseURL: srv.URL, APIKey: "k", SignerUUID: "signer-1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	hash, err := client.Cast(context.Background(), "my new video", "https://cdn.local/v/abc")
	if err != nil {
		t.Fatalf("Cast: %v", err)
	}
	if hash != "0xcast123" {
		t.Fatalf("hash = %q", hash)
	}
	if gotKey != "k" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotBody["text"] != "my new video" || gotBody["signer_uuid"] != "signer-1" {
		t.Errorf("body = %v", gotBody)
	}
	embeds, _ := gotBody["embeds"].([]any)
	if len(embeds) != 1 {
		t.Fatalf("embeds = %v", gotBody["embeds"])
	}
}

func TestCastRejectsEmptyAndOversizeText(t *testing.T) {
	client, _ := NewClient(Options{BaseURL: "http://127.0.0.1:1", APIKey: "k"})
	if _, err := client.Cast(context.Background(), "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty text: error = %v", err)
	}
	if _, err := client.Cast(context.Background(), strings.Repeat("x", maxCastText+1)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("oversize text: error = %v", err)
	}
}

func TestCastSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid signer"))
	}))
	defer srv.Close()

	client, _ := NewClient(Options{BaseURL: srv.URL, APIKey: "k"})
	_, err := client.Cast(context.Background(), "hello")
	var serverErr *domain.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("error = %v, want ServerError", err)
	}
	if serverErr.Status != http.StatusForbidden || serverErr.Body != "invalid signer" {
		t.Fatalf("server error = %+v", serverErr)
	}
}
