package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	logx "statusrelay/pkg/logx"
)

func TestDeliverCallsSendMessage(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var params map[string]any
		_ = json.Unmarshal(b, &params)
		mu.Lock()
		path = r.URL.Path
		if s, ok := params["text"].(string); ok {
			texts = append(texts, s)
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"group"}}}`)
	}))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Deliver(context.Background(), "API is now Major Outage"); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if len(texts) != 1 || texts[0] != "API is now Major Outage" {
		t.Fatalf("texts = %q", texts)
	}
}

func TestNewRequiresTokenAndChat(t *testing.T) {
	if _, err := New(Config{ChatID: 1}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := New(Config{Token: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty chat")
	}
}

func TestSplitText(t *testing.T) {
	if got := splitText("short", 10); len(got) != 1 {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(long, 8)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
	runes := splitText(strings.Repeat("é", 25), 10)
	if len(runes) != 3 || len([]rune(runes[2])) != 5 {
		t.Fatalf("got %q", runes)
	}
}
