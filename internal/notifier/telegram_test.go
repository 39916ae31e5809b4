package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"igreply/internal/model"
)

func TestReportEventPostsToChat(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("bot123", "chat9")
	tg.apiBase = srv.URL
	tg.ReportEvent(context.Background(), KindTokenRefreshFailed, "token refresh failed", "status 500")

	if gotPath != "/botbot123/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "chat9" || gotBody["parse_mode"] != "HTML" {
		t.Fatalf("body = %v", gotBody)
	}
	text := gotBody["text"].(string)
	if !strings.Contains(text, "token_refresh_failed") || !strings.Contains(text, "status 500") {
		t.Fatalf("text = %q", text)
	}
}

func TestForwardUserMessageLinksProfile(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("bot123", "chat9")
	tg.apiBase = srv.URL
	p := model.Profile{UserID: "u1", Username: "chef", FullName: "Chef <One>"}
	tg.ForwardUserMessage(context.Background(), p, strings.Repeat("x", 150))

	text := gotBody["text"].(string)
	if !strings.Contains(text, `https://instagram.com/chef`) {
		t.Fatalf("missing profile link: %q", text)
	}
	if !strings.Contains(text, "Chef &lt;One&gt;") {
		t.Fatalf("name not escaped: %q", text)
	}
	if !strings.Contains(text, "...") {
		t.Fatalf("long message not truncated: %q", text)
	}
}

func TestForwardUserMessageTruncatesOnRuneBoundary(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("bot123", "chat9")
	tg.apiBase = srv.URL
	tg.ForwardUserMessage(context.Background(), model.Profile{FullName: "U"}, strings.Repeat("é", 150))

	text := gotBody["text"].(string)
	if !utf8.ValidString(text) {
		t.Fatalf("truncated text is not valid UTF-8: %q", text)
	}
	if !strings.HasSuffix(text, "é...") {
		t.Fatalf("expected truncation after a whole rune: %q", text)
	}
}

func TestUnconfiguredTelegramIsNoop(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	tg := NewTelegram("", "")
	tg.apiBase = srv.URL
	tg.ReportEvent(context.Background(), KindOther, "msg", "")
	tg.ForwardUserMessage(context.Background(), model.Profile{}, "text")
	if hits != 0 {
		t.Fatal("unconfigured notifier must not call the API")
	}
}
