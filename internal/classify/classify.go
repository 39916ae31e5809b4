package classify

import (
	"regexp"
	"strings"

	"igreply/internal/model"
)

var urlRegexp = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// mediaAttachmentTypes are attachment types that carry platform-native
// shared content rather than plain files.
var mediaAttachmentTypes = map[string]bool{
	"ig_reel":  true,
	"reel":     true,
	"share":    true,
	"story":    true,
	"template": true,
}

// IsMediaMessage reports whether an inbound event contains shared platform
// media: an instagram.com link in the text, or a media-class attachment.
func IsMediaMessage(ev model.Event) bool {
	if strings.Contains(ev.Text, "instagram.com/") {
		return true
	}
	for _, att := range ev.Attachments {
		if mediaAttachmentTypes[att.Type] {
			return true
		}
	}
	return false
}

// IsExcluded reports whether text matches the configured spam filter:
// a case-insensitive substring match against any excluded sentence.
func IsExcluded(text string, excluded []string) bool {
	if text == "" || len(excluded) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, s := range excluded {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" && strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ExtractURLs returns all URLs found in text.
func ExtractURLs(text string) []string {
	if text == "" {
		return nil
	}
	return urlRegexp.FindAllString(text, -1)
}

// HasSharedURLs reports whether the event carries any URL, in text or as a
// share attachment.
func HasSharedURLs(ev model.Event) bool {
	if urlRegexp.MatchString(ev.Text) {
		return true
	}
	for _, att := range ev.Attachments {
		if att.Type == "share" && att.URL != "" {
			return true
		}
	}
	return false
}
