package classify

import (
	"testing"

	"igreply/internal/model"
)

func TestIsMediaMessage(t *testing.T) {
	cases := []struct {
		name string
		ev   model.Event
		want bool
	}{
		{"instagram link in text", model.Event{Text: "look https://www.instagram.com/reel/abc123/"}, true},
		{"plain text", model.Event{Text: "hello there"}, false},
		{"other link", model.Event{Text: "https://example.com/post"}, false},
		{"reel attachment", model.Event{Attachments: []model.Attachment{{Type: "ig_reel"}}}, true},
		{"story attachment", model.Event{Attachments: []model.Attachment{{Type: "story"}}}, true},
		{"share attachment", model.Event{Attachments: []model.Attachment{{Type: "share"}}}, true},
		{"image attachment", model.Event{Attachments: []model.Attachment{{Type: "image"}}}, false},
		{"empty", model.Event{}, false},
	}
	for _, c := range cases {
		if got := IsMediaMessage(c.ev); got != c.want {
			t.Errorf("%s: IsMediaMessage = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsExcluded(t *testing.T) {
	excluded := []string{"Win a FREE iPhone", "crypto signals"}
	if !IsExcluded("WIN A FREE IPHONE today!!", excluded) {
		t.Fatal("expected case-insensitive match")
	}
	if IsExcluded("can you share the recipe?", excluded) {
		t.Fatal("expected no match")
	}
	if IsExcluded("anything", nil) {
		t.Fatal("empty filter must match nothing")
	}
	if IsExcluded("", excluded) {
		t.Fatal("empty text must match nothing")
	}
}

func TestExtractURLs(t *testing.T) {
	urls := ExtractURLs("see https://instagram.com/p/1 and http://example.com/x then bye")
	if len(urls) != 2 {
		t.Fatalf("got %d urls, want 2: %v", len(urls), urls)
	}
	if urls[0] != "https://instagram.com/p/1" {
		t.Fatalf("unexpected first url %q", urls[0])
	}
	if ExtractURLs("no links here") != nil {
		t.Fatal("expected nil for no links")
	}
}

func TestHasSharedURLs(t *testing.T) {
	if !HasSharedURLs(model.Event{Text: "https://example.com"}) {
		t.Fatal("text url not detected")
	}
	if !HasSharedURLs(model.Event{Attachments: []model.Attachment{{Type: "share", URL: "https://x.co/1"}}}) {
		t.Fatal("share attachment url not detected")
	}
	if HasSharedURLs(model.Event{Attachments: []model.Attachment{{Type: "share"}}}) {
		t.Fatal("share without url must not count")
	}
}
