// Package tagcodec replaces URL-like substrings with positional placeholders
// before text is handed to an AI backend and restores them afterwards. The
// model never sees a raw URL, so it cannot corrupt one.
package tagcodec

import (
	"fmt"
	"regexp"
	"strings"
)

// TagMap maps a placeholder such as "<TAG_3/>" back to the original URL.
// Indices are 1-based and contiguous across all texts of one Preprocess call;
// duplicate URLs get distinct placeholders so restoration stays positional.
type TagMap map[string]string

var (
	urlPattern = regexp.MustCompile(`(?:https?|gs)://[^\s"'<>\\]+`)
	tagPattern = regexp.MustCompile(`<TAG_(?:[A-Z0-9]+(?:_[A-Z0-9]+)*_)?[0-9]+/>`)
)

// Preprocess scans each text for http, https and gs URLs and replaces every
// match, in text order, with a placeholder of the form <TAG_N/>. The counter
// is shared across the whole input sequence.
func Preprocess(texts []string) ([]string, TagMap) {
	return preprocess(texts, false)
}

// PreprocessTyped behaves like Preprocess but encodes the inferred media type
// in the tag name, e.g. <TAG_IMAGE_JPEG_2/>. URLs without a recognizable
// media extension fall back to the plain form. The index space is the same
// single global counter as the plain variant.
func PreprocessTyped(texts []string) ([]string, TagMap) {
	return preprocess(texts, true)
}

func preprocess(texts []string, typed bool) ([]string, TagMap) {
	tags := TagMap{}
	tagged := make([]string, len(texts))
	n := 0
	for i, text := range texts {
		tagged[i] = urlPattern.ReplaceAllStringFunc(text, func(match string) string {
			n++
			tag := fmt.Sprintf("<TAG_%d/>", n)
			if typed {
				if token := mimeToken(MIMEForURL(match)); token != "" {
					tag = fmt.Sprintf("<TAG_%s_%d/>", token, n)
				}
			}
			tags[tag] = match
			return tag
		})
	}
	return tagged, tags
}

// Restore replaces every known placeholder in text with its original URL.
// Placeholders that appear in the text but not in the map are left verbatim
// and returned so the caller can report them; an AI step may have echoed a
// malformed tag and that must not fail the run.
func Restore(text string, tags TagMap) (string, []string) {
	for tag, url := range tags {
		text = strings.ReplaceAll(text, tag, url)
	}
	unknown := tagPattern.FindAllString(text, -1)
	return text, unknown
}

// MIMEForURL infers a media MIME type from the URL's file extension. It
// returns "" when no media extension is recognized.
func MIMEForURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	dot := strings.LastIndex(url, ".")
	if dot < 0 || dot < strings.LastIndex(url, "/") {
		return ""
	}
	switch strings.ToLower(url[dot:]) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return ""
	}
}

// MIMEForTag returns the MIME type encoded in a typed placeholder, or "" for
// the plain form.
func MIMEForTag(tag string) string {
	inner := strings.TrimSuffix(strings.TrimPrefix(tag, "<TAG_"), "/>")
	end := strings.LastIndex(inner, "_")
	if end < 0 {
		return ""
	}
	return tokenToMIME(inner[:end])
}

func mimeToken(mime string) string {
	if mime == "" {
		return ""
	}
	token := strings.ToUpper(mime)
	token = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(token)
	return token
}

func tokenToMIME(token string) string {
	parts := strings.SplitN(strings.ToLower(token), "_", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0] + "/" + parts[1]
}
