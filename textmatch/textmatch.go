package textmatch

import (
	"math"
	"strings"

	"golang.org/x/net/html"

	"eventsync/model"
)

// InterestVerdict is the interest facet of a classification.
type InterestVerdict struct {
	Match    bool
	Score    int // 0-100
	Keywords []string
	Reason   string // set only when an LLM contributed
}

// SpeakerVerdict is the speaker-opportunity facet of a classification.
type SpeakerVerdict struct {
	Opportunity bool
	HasOpenSlot bool
	HasCFP      bool
	Keywords    []string
}

// Slot keywords are checked against title and catch only; CFP and general
// speaker keywords are checked against the full stripped text as well.
var (
	slotKeywords = []string{
		"lt募集", "登壇者募集", "スピーカー募集", "発表者募集",
		"lt枠", "登壇枠", "発表枠", "open slot", "speaker wanted",
	}
	cfpKeywords = []string{
		"cfp", "call for proposals", "call for papers", "プロポーザル募集",
		"トーク募集", "公募",
	}
	generalSpeakerKeywords = []string{
		"lightning talk", "ライトニングトーク", "登壇", "スピーカー",
	}
)

// Online/region detection lists. First match wins within a list; the two
// checks are independent of each other.
var (
	onlineKeywords = []string{
		"オンライン", "online", "zoom", "youtube", "リモート", "配信",
	}
	localKeywords = []string{
		"福岡", "fukuoka", "博多", "天神", "北九州", "久留米",
	}
)

// MatchKeywords performs a case-insensitive substring search of each keyword
// against the event's title, catch and stripped description. The score is the
// fraction of configured keywords that matched, scaled to 0-100.
func MatchKeywords(ev *model.Event, keywords []string) InterestVerdict {
	if len(keywords) == 0 {
		return InterestVerdict{}
	}

	haystack := strings.ToLower(ev.Title + " " + ev.Catch + " " + StripHTML(ev.Description))

	var matched []string
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}

	score := int(math.Round(100 * float64(len(matched)) / float64(len(keywords))))
	return InterestVerdict{
		Match:    len(matched) > 0,
		Score:    score,
		Keywords: matched,
	}
}

// AnalyzeSpeakerOpportunity detects open speaking slots and calls for
// proposals. Slot keywords only count in the title/catch; CFP and general
// speaker keywords count anywhere in the text.
func AnalyzeSpeakerOpportunity(ev *model.Event) SpeakerVerdict {
	titleCatch := strings.ToLower(ev.Title + " " + ev.Catch)
	full := titleCatch + " " + strings.ToLower(StripHTML(ev.Description))

	v := SpeakerVerdict{}
	seen := make(map[string]bool)
	add := func(kw string) {
		if !seen[kw] {
			seen[kw] = true
			v.Keywords = append(v.Keywords, kw)
		}
	}

	for _, kw := range slotKeywords {
		if strings.Contains(titleCatch, strings.ToLower(kw)) {
			v.HasOpenSlot = true
			add(kw)
		}
	}
	for _, kw := range cfpKeywords {
		if strings.Contains(full, strings.ToLower(kw)) {
			v.HasCFP = true
			add(kw)
		}
	}
	for _, kw := range generalSpeakerKeywords {
		if strings.Contains(full, strings.ToLower(kw)) {
			add(kw)
		}
	}

	v.Opportunity = v.HasOpenSlot || v.HasCFP
	return v
}

// MatchesAny reports whether any keyword occurs in s, case-insensitively.
func MatchesAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// DetectOnline checks place, address and title against the online keyword list.
func DetectOnline(ev *model.Event) bool {
	return MatchesAny(ev.Place+" "+ev.Address+" "+ev.Title, onlineKeywords)
}

// DetectLocal checks place and address against the region keyword list.
func DetectLocal(ev *model.Event) bool {
	return MatchesAny(ev.Place+" "+ev.Address, localKeywords)
}

// StripHTML removes markup from s and collapses runs of whitespace, so
// keyword search never matches across tag fragments.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var sb strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.WriteString(tok.Token().Data)
			sb.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}
