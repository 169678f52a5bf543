package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestFetchNotifications(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/notifications" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"notifications":[
			{"id":7,"category":"ORDER","title":"{item} shipped","context":{"item":"Sofa"},"read":false,"created_at":1000},
			{"id":0,"category":"BROKEN"},
			{"id":8,"category":"COMMENT","title":"new comment","read":true,"created_at":2000}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123", zap.NewNop())
	list, err := c.FetchNotifications(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
	// The id:0 record is malformed and must be skipped, not fail the fetch.
	if len(list) != 2 {
		t.Fatalf("got %d notifications, want 2", len(list))
	}
	if list[0].ID != 7 || list[0].TitleTmpl != "{item} shipped" {
		t.Errorf("first = %+v, want id 7 with template title", list[0])
	}
	if !list[1].Read {
		t.Error("second notification should be read")
	}
}

func TestMutationEndpoints(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	ctx := context.Background()

	if err := c.MarkRead(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkAllRead(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteAll(ctx); err != nil {
		t.Fatal(err)
	}

	want := []call{
		{"POST", "/v1/notifications/7/read"},
		{"POST", "/v1/notifications/read-all"},
		{"DELETE", "/v1/notifications/7"},
		{"DELETE", "/v1/notifications"},
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired", zap.NewNop())
	err := c.MarkRead(context.Background(), 1)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error type = %T, want *AuthError", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", authErr.StatusCode)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	if err := c.Delete(context.Background(), 1); err == nil {
		t.Error("expected error on HTTP 500")
	}
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"id":3,"category":"KEYWORD","title":"{kw} mentioned","context":{"kw":"oak table"},"redirect":"/posts/9"}`))
	if err != nil {
		t.Fatal(err)
	}
	if n.ID != 3 || n.Context["kw"] != "oak table" || n.Redirect != "/posts/9" {
		t.Errorf("parsed = %+v", n)
	}

	if _, err := ParseNotification([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := ParseNotification([]byte(`{"category":"NO_ID"}`)); err == nil {
		t.Error("expected error for missing id")
	}
}
