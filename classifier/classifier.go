package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"eventsync/llm"
	"eventsync/model"
	"eventsync/textmatch"
)

// Classification is the combined verdict for one event. Exactly one of
// Excluded or the verdict pair is meaningful: when Excluded is true the
// verdicts are both negative and the event must not be synced.
type Classification struct {
	Excluded bool
	Interest textmatch.InterestVerdict
	Speaker  textmatch.SpeakerVerdict
}

// Matched reports whether the event should be mirrored to the calendar.
func (c *Classification) Matched() bool {
	return !c.Excluded && (c.Interest.Match || c.Speaker.Opportunity)
}

// Classifier produces one Classification per event. The LLM is optional;
// without it, interest falls back to keyword matching.
type Classifier struct {
	keywords         []string
	excludeKeywords  []string
	interestPrompt   string
	popularThreshold int
	generator        llm.Generator
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithKeywords sets the interest keyword list.
func WithKeywords(kws []string) Option {
	return func(c *Classifier) { c.keywords = kws }
}

// WithExcludeKeywords sets the title exclusion list.
func WithExcludeKeywords(kws []string) Option {
	return func(c *Classifier) { c.excludeKeywords = kws }
}

// WithInterestPrompt sets the profile text handed to the LLM.
func WithInterestPrompt(p string) Option {
	return func(c *Classifier) { c.interestPrompt = p }
}

// WithPopularThreshold sets the accepted-participant short-circuit threshold.
func WithPopularThreshold(n int) Option {
	return func(c *Classifier) { c.popularThreshold = n }
}

// WithGenerator enables the LLM path.
func WithGenerator(g llm.Generator) Option {
	return func(c *Classifier) { c.generator = g }
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{popularThreshold: 50}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Excluded reports whether the event title hits an exclude keyword. Checked
// before any classification so excluded events never reach the LLM.
func (c *Classifier) Excluded(ev *model.Event) bool {
	return textmatch.MatchesAny(ev.Title, c.excludeKeywords)
}

// IsPopular reports whether the event clears the participant threshold.
func (c *Classifier) IsPopular(ev *model.Event) bool {
	return c.popularThreshold > 0 && ev.Accepted >= c.popularThreshold
}

// Classify produces the verdict pair for one event. It never returns an
// error for LLM failures; those degrade to the negative default.
func (c *Classifier) Classify(ctx context.Context, ev *model.Event) *Classification {
	if c.Excluded(ev) {
		return &Classification{Excluded: true}
	}

	// Popular events are an automatic interest match; no LLM spend. The
	// speaker facet still runs through the heuristics.
	if c.IsPopular(ev) {
		return &Classification{
			Interest: textmatch.InterestVerdict{
				Match:    true,
				Score:    80,
				Keywords: []string{fmt.Sprintf("popular(%d)", ev.Accepted)},
			},
			Speaker: textmatch.AnalyzeSpeakerOpportunity(ev),
		}
	}

	if c.generator == nil {
		return &Classification{
			Interest: textmatch.MatchKeywords(ev, c.keywords),
			Speaker:  textmatch.AnalyzeSpeakerOpportunity(ev),
		}
	}

	cls, err := c.classifyWithLLM(ctx, ev)
	if err != nil {
		slog.Warn("llm classification failed, defaulting to negative verdict",
			"event_id", ev.ID, "error", err)
		return &Classification{}
	}
	return cls
}

type llmVerdicts struct {
	Interest struct {
		IsMatch  bool     `json:"is_match"`
		Score    int      `json:"score"`
		Keywords []string `json:"matched_keywords"`
		Reason   string   `json:"reason"`
	} `json:"interest"`
	Speaker struct {
		HasOpportunity bool     `json:"has_opportunity"`
		HasLTSlot      bool     `json:"has_lt_slot"`
		HasCFP         bool     `json:"has_cfp"`
		Keywords       []string `json:"keywords"`
	} `json:"speaker"`
}

func (c *Classifier) classifyWithLLM(ctx context.Context, ev *model.Event) (*Classification, error) {
	prompt := c.buildPrompt(ev)

	text, err := c.generator.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	raw, err := llm.ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("extract json: %w", err)
	}

	var v llmVerdicts
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parse verdicts: %w", err)
	}

	score := v.Interest.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Classification{
		Interest: textmatch.InterestVerdict{
			Match:    v.Interest.IsMatch,
			Score:    score,
			Keywords: v.Interest.Keywords,
			Reason:   v.Interest.Reason,
		},
		Speaker: textmatch.SpeakerVerdict{
			Opportunity: v.Speaker.HasLTSlot || v.Speaker.HasCFP || v.Speaker.HasOpportunity,
			HasOpenSlot: v.Speaker.HasLTSlot,
			HasCFP:      v.Speaker.HasCFP,
			Keywords:    v.Speaker.Keywords,
		},
	}, nil
}

func (c *Classifier) buildPrompt(ev *model.Event) string {
	desc := textmatch.StripHTML(ev.Description)
	if len(desc) > 4000 {
		desc = desc[:4000]
	}

	return fmt.Sprintf(`You evaluate tech community events for one attendee.

Attendee interests:
%s

Interest keywords: %s

Event:
Title: %s
Tagline: %s
Description:
%s

Judge two things: (1) whether the event matches the attendee's interests, with
a 0-100 score; (2) whether it offers a speaking opportunity (an open lightning
talk slot or a call for proposals).

Respond with JSON only, in this exact format:
{"interest":{"is_match":false,"score":0,"matched_keywords":[],"reason":""},"speaker":{"has_opportunity":false,"has_lt_slot":false,"has_cfp":false,"keywords":[]}}`,
		c.interestPrompt, strings.Join(c.keywords, ", "), ev.Title, ev.Catch, desc)
}
