package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"igreply/internal/logging"
	"igreply/internal/model"
)

// Report kinds surfaced to the operator channel.
const (
	KindTokenExpired       = "token_expired"
	KindTokenRefreshFailed = "token_refresh_failed"
	KindSendFailed         = "send_failed"
	KindOther              = "other"
)

// Notifier delivers operator-facing reports. Implementations are
// fire-and-forget: they never block or fail the caller's path.
type Notifier interface {
	ReportEvent(ctx context.Context, kind, msg, detail string)
	ForwardUserMessage(ctx context.Context, profile model.Profile, text string)
}

// Noop discards all reports.
type Noop struct{}

func (Noop) ReportEvent(context.Context, string, string, string)       {}
func (Noop) ForwardUserMessage(context.Context, model.Profile, string) {}

// Telegram posts reports to a Telegram chat via the bot API.
type Telegram struct {
	botToken   string
	chatID     string
	apiBase    string
	httpClient *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken:   botToken,
		chatID:     chatID,
		apiBase:    "https://api.telegram.org",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) configured() bool { return t.botToken != "" && t.chatID != "" }

// ReportEvent posts a one-line operator report. Failures are logged only.
func (t *Telegram) ReportEvent(ctx context.Context, kind, msg, detail string) {
	if !t.configured() {
		return
	}
	text := fmt.Sprintf("❌ <b>%s</b>\n%s", escapeHTML(kind), escapeHTML(msg))
	if detail != "" {
		text += "\n" + escapeHTML(detail)
	}
	t.post(ctx, text)
}

// ForwardUserMessage relays an inbound DM to the operator chat with a link
// to the sender's profile when a username is known.
func (t *Telegram) ForwardUserMessage(ctx context.Context, profile model.Profile, text string) {
	if !t.configured() {
		return
	}
	name := profile.FullName
	if name == "" {
		name = "Unknown User"
	}
	if runes := []rune(text); len(runes) > 100 {
		text = string(runes[:100]) + "..."
	}
	var header string
	if profile.Username != "" {
		header = fmt.Sprintf(`<a href="https://instagram.com/%s"><b>%s</b></a>`, profile.Username, escapeHTML(name))
	} else {
		header = fmt.Sprintf("<b>%s</b>", escapeHTML(name))
	}
	t.post(ctx, header+": "+escapeHTML(text))
}

func (t *Telegram) post(ctx context.Context, text string) {
	body, _ := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	u := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.httpClient.Do(req)
	if err != nil {
		logging.Error("telegram_notify_failed", map[string]any{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		logging.Error("telegram_notify_failed", map[string]any{"status": resp.StatusCode})
	}
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
