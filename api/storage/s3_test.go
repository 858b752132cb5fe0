package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeS3 accepts bucket existence checks and PUT requests and remembers the bodies.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func TestPutJSON(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c, err := NewClient(Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	report := map[string]int{"breached": 2}
	if err := c.PutJSON(context.Background(), "reports", "daily/2026-03-14.json", report); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	body, ok := fake.objects["/reports/daily/2026-03-14.json"]
	if !ok {
		t.Fatalf("object not stored, have %v", fake.objects)
	}
	if !strings.Contains(body, `"breached": 2`) {
		t.Errorf("body = %q", body)
	}
	if fake.types["/reports/daily/2026-03-14.json"] != "application/json" {
		t.Errorf("content type = %q", fake.types["/reports/daily/2026-03-14.json"])
	}
}

func TestEndpoint(t *testing.T) {
	c, err := NewClient(Config{Endpoint: "s3.example.com", AccessKey: "a", SecretKey: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Endpoint() != "s3.example.com" {
		t.Errorf("Endpoint = %q", c.Endpoint())
	}
}
