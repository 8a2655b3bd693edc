package classifier

import (
	"context"
	"errors"
	"testing"

	"eventsync/model"
)

type fakeGenerator struct {
	response string
	err      error
	calls    int
}

func (f *fakeGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestClassifyPopularShortCircuit(t *testing.T) {
	gen := &fakeGenerator{response: `{"interest":{"is_match":false,"score":0}}`}
	c := New(
		WithPopularThreshold(50),
		WithGenerator(gen),
	)

	ev := &model.Event{ID: 1, Title: "Giant meetup", Accepted: 60}
	cls := c.Classify(context.Background(), ev)

	if !cls.Interest.Match {
		t.Error("Interest.Match = false, want true for popular event")
	}
	if cls.Interest.Score != 80 {
		t.Errorf("Score = %d, want 80", cls.Interest.Score)
	}
	if len(cls.Interest.Keywords) != 1 || cls.Interest.Keywords[0] != "popular(60)" {
		t.Errorf("Keywords = %v, want [popular(60)]", cls.Interest.Keywords)
	}
	if gen.calls != 0 {
		t.Errorf("LLM called %d times in the popular path, want 0", gen.calls)
	}
}

func TestClassifyPopularStillRunsSpeakerHeuristics(t *testing.T) {
	c := New(WithPopularThreshold(50), WithGenerator(&fakeGenerator{}))

	ev := &model.Event{ID: 1, Title: "Big night LT募集", Accepted: 100}
	cls := c.Classify(context.Background(), ev)

	if !cls.Speaker.Opportunity {
		t.Error("Speaker.Opportunity = false, want heuristic detection in popular path")
	}
}

func TestClassifyExcluded(t *testing.T) {
	gen := &fakeGenerator{}
	c := New(
		WithExcludeKeywords([]string{"book club"}),
		WithPopularThreshold(50),
		WithGenerator(gen),
	)

	ev := &model.Event{ID: 1, Title: "Book Club Night", Accepted: 60}
	cls := c.Classify(context.Background(), ev)

	if !cls.Excluded {
		t.Fatal("Excluded = false, want true")
	}
	if cls.Matched() {
		t.Error("Matched() = true for excluded event")
	}
	if gen.calls != 0 {
		t.Errorf("LLM called for excluded event")
	}
}

func TestClassifyLLMVerdicts(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n" +
		`{"interest":{"is_match":false,"score":10},"speaker":{"has_opportunity":true,"has_lt_slot":true,"has_cfp":false}}` +
		"\n```"}
	c := New(WithPopularThreshold(50), WithGenerator(gen))

	ev := &model.Event{ID: 1, Title: "Small meetup", Accepted: 10}
	cls := c.Classify(context.Background(), ev)

	if cls.Interest.Match {
		t.Error("Interest.Match = true, want false")
	}
	if cls.Interest.Score != 10 {
		t.Errorf("Score = %d, want 10", cls.Interest.Score)
	}
	if !cls.Speaker.Opportunity || !cls.Speaker.HasOpenSlot {
		t.Errorf("Speaker = %+v, want opportunity via open slot", cls.Speaker)
	}
	// Speaker opportunity alone is enough to sync.
	if !cls.Matched() {
		t.Error("Matched() = false, want true on speaker opportunity alone")
	}
}

func TestClassifyLLMFailureDefaultsNegative(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"transport error", &fakeGenerator{err: errors.New("connection reset")}},
		{"malformed output", &fakeGenerator{response: "sorry, I can't do that"}},
		{"missing fields still parse", &fakeGenerator{response: `{}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithPopularThreshold(50), WithGenerator(tt.gen))
			ev := &model.Event{ID: 1, Title: "Small meetup", Accepted: 5}

			cls := c.Classify(context.Background(), ev)

			if cls.Matched() {
				t.Error("Matched() = true, want negative default")
			}
			if cls.Interest.Score != 0 {
				t.Errorf("Score = %d, want 0", cls.Interest.Score)
			}
		})
	}
}

func TestClassifyWithoutLLMFallsBackToKeywords(t *testing.T) {
	c := New(
		WithKeywords([]string{"golang"}),
		WithPopularThreshold(50),
	)

	ev := &model.Event{ID: 1, Title: "Golang night", Accepted: 5}
	cls := c.Classify(context.Background(), ev)

	if !cls.Interest.Match {
		t.Error("Interest.Match = false, want keyword fallback match")
	}
	if cls.Interest.Reason != "" {
		t.Errorf("Reason = %q, want empty without an LLM", cls.Interest.Reason)
	}
}

func TestClassifyScoreClamped(t *testing.T) {
	gen := &fakeGenerator{response: `{"interest":{"is_match":true,"score":250}}`}
	c := New(WithPopularThreshold(50), WithGenerator(gen))

	cls := c.Classify(context.Background(), &model.Event{ID: 1, Accepted: 1})
	if cls.Interest.Score != 100 {
		t.Errorf("Score = %d, want clamped to 100", cls.Interest.Score)
	}
}
