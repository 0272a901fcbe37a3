package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "statusrelay/pkg/logx"
)

func TestHandlerAuthAndRoutes(t *testing.T) {
	s := New(Config{}, func() (any, error) { return map[string]int{"runs": 3}, nil }, logx.Nop())
	srv := httptest.NewServer(s.Handler(Config{Token: "s3cret"}))
	defer srv.Close()

	get := func(path, bearer string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(http.MethodGet, srv.URL+path, http.NoBody)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := get("/healthz", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}
	if resp := get("/healthz?token=wrong", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token: status %d", resp.StatusCode)
	}

	resp := get("/healthz", "s3cret")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}

	if resp := get("/metrics?token=s3cret", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	if resp := get("/debug/pprof/", "s3cret"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof should be off, status %d", resp.StatusCode)
	}
}

func TestHealthDegraded(t *testing.T) {
	s := New(Config{}, func() (any, error) { return nil, errors.New("last run failed") }, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "last run failed") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestStartStop(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}, nil, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no bound addr after Start")
	}
	resp, err := http.Get("http://" + addr + "/debug/pprof/")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof status %d", resp.StatusCode)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatal("server still bound after disable")
	}
}

func TestStartRefusesExposedWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	if err := s.Start(context.Background()); !errors.Is(err, ErrExposed) {
		t.Fatalf("err = %v, want ErrExposed", err)
	}
	if s.Addr() != "" {
		t.Fatal("listener bound despite refusal")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9321": true,
		"localhost:80":   true,
		"[::1]:1":        true,
		":9321":          false,
		"0.0.0.0:9321":   false,
		"10.0.0.1:80":    false,
	}
	for addr, want := range cases {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v", addr, got)
		}
	}
}
