package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"linepaste/cfg"
	"linepaste/pkg/kms"
	"linepaste/svc/cache"
	"linepaste/svc/lim"
	"linepaste/svc/store"
	"linepaste/svc/svc"
	"linepaste/svc/util"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	util.InitLog("error", false)
	c := &cfg.Cfg{
		Port:           "0",
		Environment:    "test",
		LogLevel:       "error",
		UIDLength:      8,
		MaxPasteSize:   1 << 20,
		MaxCommentSize: 1 << 14,
		ContextTimeout: 10 * time.Second,
		LRUCacheSize:   100,
		RateLimit:      cfg.RateLimitCfg{RPM: 100000, Burst: 100000, ConservativeLimit: 100000},
		AllowedOrigins: []string{"*"},
		WorkerPoolSize: 2,
		NotifyTimeout:  5 * time.Second,
		AppBaseURL:     "http://localhost:8080",
	}
	key, err := kms.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	st, err := store.New(t.TempDir(), key)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	lru, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		t.Fatalf("cache.NewLRU failed: %v", err)
	}
	pasteSvc := svc.NewPaste(st, lru, nil, nil, c)
	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.RateLimit.ConservativeLimit, nil, nil)
	t.Cleanup(func() {
		pasteSvc.Shutdown()
		limiter.Stop()
		st.Close()
	})
	return NewServer(c, pasteSvc, limiter, st, nil)
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	// httptest.NewRequest sets r.ContentLength but not the header a
	// real client sends; the handler checks the header.
	r.Header.Set("Content-Length", strconv.Itoa(len(body)))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func createPaste(t *testing.T, s *Server, body string) string {
	t.Helper()
	w := postJSON(t, s, "/pastes", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var resp CreateResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create: bad response: %v", err)
	}
	if resp.UID == "" {
		t.Fatal("create: empty uid")
	}
	return resp.UID
}

func TestCreateAndGetPaste(t *testing.T) {
	s := newTestServer(t)
	uid := createPaste(t, s, `{"content":"a\nb\nc","language":"plaintext","name":"alice"}`)

	r := httptest.NewRequest(http.MethodGet, "/pastes/"+uid, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status %d, body %s", w.Code, w.Body.String())
	}
	var view map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("get: bad response: %v", err)
	}
	if view["content"] != "a\nb\nc" {
		t.Errorf("content mismatch: %v", view["content"])
	}
	rendered, _ := view["highlighted_content"].(string)
	if !strings.Contains(rendered, `id="L3"`) {
		t.Errorf("rendered listing missing line anchors: %s", rendered)
	}
}

func TestGetPasteRaw(t *testing.T) {
	s := newTestServer(t)
	uid := createPaste(t, s, `{"content":"hello"}`)
	r := httptest.NewRequest(http.MethodGet, "/pastes/"+uid+"?raw=1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var view map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if rendered, ok := view["highlighted_content"].(string); ok && rendered != "" {
		t.Errorf("raw view should not carry rendered HTML: %s", rendered)
	}
}

func TestGetPasteNotFound(t *testing.T) {
	s := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/pastes/nosuchuid1", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreatePasteRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)

	r := httptest.NewRequest(http.MethodPost, "/pastes", strings.NewReader(`{"content":"x"}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("wrong content type: expected 415, got %d", w.Code)
	}

	if w := postJSON(t, s, "/pastes", `{"content":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty content: expected 400, got %d", w.Code)
	}
	if w := postJSON(t, s, "/pastes", `{"content":"x","bogus":true}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown field: expected 400, got %d", w.Code)
	}
	if w := postJSON(t, s, "/pastes", `{"content":"x","email":"not-an-email"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad email: expected 400, got %d", w.Code)
	}
	if w := postJSON(t, s, "/pastes", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("garbage body: expected 400, got %d", w.Code)
	}
}

func TestAddCommentEndpoint(t *testing.T) {
	s := newTestServer(t)
	uid := createPaste(t, s, `{"content":"a\nb\nc"}`)

	w := postJSON(t, s, "/pastes/"+uid+"/comments", `{"line":2,"comment":"nice","name":"bob","email":"bob@example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("comment: status %d, body %s", w.Code, w.Body.String())
	}
	var view map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view["line"] != float64(2) {
		t.Errorf("line mismatch: %v", view["line"])
	}
	color, _ := view["color"].(string)
	if len(color) != 6 {
		t.Errorf("color shape: %q", color)
	}

	cases := []struct {
		name string
		body string
	}{
		{"no comment", `{"line":1,"name":"bob"}`},
		{"no name", `{"line":1,"comment":"x"}`},
		{"zero line", `{"line":0,"comment":"x","name":"bob"}`},
		{"bad email", `{"line":1,"comment":"x","name":"bob","email":"nope"}`},
	}
	for _, tc := range cases {
		if w := postJSON(t, s, "/pastes/"+uid+"/comments", tc.body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}

	if w := postJSON(t, s, "/pastes/nosuchuid1/comments", `{"line":1,"comment":"x","name":"bob"}`); w.Code != http.StatusNotFound {
		t.Errorf("missing paste: expected 404, got %d", w.Code)
	}
}

func TestExcerptEndpoint(t *testing.T) {
	s := newTestServer(t)
	uid := createPaste(t, s, `{"content":"1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12"}`)

	r := httptest.NewRequest(http.MethodGet, "/pastes/"+uid+"/excerpt?line=8", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("excerpt: status %d, body %s", w.Code, w.Body.String())
	}
	var resp ExcerptResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.HTML, `start="3"`) {
		t.Errorf("excerpt window should start at line 3: %s", resp.HTML)
	}

	r = httptest.NewRequest(http.MethodGet, "/pastes/"+uid+"/excerpt?line=0", nil)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("line=0: expected 400, got %d", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	s := newTestServer(t)
	createPaste(t, s, `{"content":"the xylophone concerto"}`)
	createPaste(t, s, `{"content":"unrelated"}`)

	r := httptest.NewRequest(http.MethodGet, "/pastes/search?q=xylophone", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("search: status %d, body %s", w.Code, w.Body.String())
	}
	var resp ScanResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Matches) != 1 {
		t.Errorf("expected 1 match, got %d", len(resp.Matches))
	}

	r = httptest.NewRequest(http.MethodGet, "/pastes/search", nil)
	w = httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing q: expected 400, got %d", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/health", "/ready"} {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)
	uid := createPaste(t, s, `{"content":"x"}`)
	r := httptest.NewRequest(http.MethodGet, "/pastes/"+uid, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff header")
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}
