package features

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// strict strips every tag. Policies are safe for concurrent use once built.
	strict = bluemonday.StrictPolicy()

	hashtagRe = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionRe = regexp.MustCompile(`@[\p{L}\p{N}_.]+`)
)

// nicheKeywords drives caption niche classification. First match wins, so
// order matters.
var nicheKeywords = []struct {
	niche    string
	keywords []string
}{
	{"cooking", []string{"food", "recipe", "cook", "kitchen", "meal"}},
	{"fitness", []string{"workout", "fitness", "gym", "training", "exercise"}},
	{"travel", []string{"travel", "trip", "flight", "beach", "hotel"}},
	{"beauty", []string{"makeup", "skincare", "beauty", "lipstick"}},
	{"gaming", []string{"gaming", "stream", "console", "esports"}},
}

// DefaultNiche is assigned to captions that match no keyword.
const DefaultNiche = "lifestyle"

// SanitizeCaption strips markup and decodes entities so counts see the text
// a reader would see.
func SanitizeCaption(s string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// ClassifyNiche maps a caption to a niche tag by keyword.
func ClassifyNiche(caption string) string {
	lc := strings.ToLower(SanitizeCaption(caption))
	for _, nk := range nicheKeywords {
		for _, kw := range nk.keywords {
			if strings.Contains(lc, kw) {
				return nk.niche
			}
		}
	}
	return DefaultNiche
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func captionLength(e Entity) (float64, bool) {
	if e.Draft == nil {
		return 0, false
	}
	c := SanitizeCaption(e.Draft.Caption)
	if c == "" {
		return 0, false
	}
	return float64(utf8.RuneCountInString(c)), true
}

func hashtagCount(e Entity) (float64, bool) {
	if e.Draft == nil {
		return 0, false
	}
	return float64(len(hashtagRe.FindAllString(SanitizeCaption(e.Draft.Caption), -1))), true
}

func mentionCount(e Entity) (float64, bool) {
	if e.Draft == nil {
		return 0, false
	}
	return float64(len(mentionRe.FindAllString(SanitizeCaption(e.Draft.Caption), -1))), true
}

func hasImage(e Entity) (float64, bool) {
	if e.Draft == nil {
		return 0, false
	}
	return boolValue(strings.TrimSpace(e.Draft.ImageRef) != ""), true
}

func isVideo(e Entity) (float64, bool) {
	if e.Draft == nil {
		return 0, false
	}
	return boolValue(e.Draft.IsVideo), true
}

// nicheMatch is 1 when the draft's niche is one the creator is known for.
func nicheMatch(e Entity) (float64, bool) {
	if e.Draft == nil || e.Profile == nil {
		return 0, false
	}
	niche := normalizeTag(e.Draft.NicheContext)
	if niche == "" {
		niche = ClassifyNiche(e.Draft.Caption)
	}
	return boolValue(e.Profile.HasNiche(niche)), true
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
