package collect

import (
	"context"
	"errors"
	"testing"

	"scout/internal/llm"
)

type fakeLLM struct {
	content   string
	grounding []llm.GroundingSource
	err       error
	lastOpts  llm.Options
}

func (f *fakeLLM) Generate(_ context.Context, _ string, opts llm.Options) (*llm.Response, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content, Model: "fake", Grounding: f.grounding}, nil
}

func TestTrendsCollector(t *testing.T) {
	fake := &fakeLLM{
		content: `[{"phrase":"bidirectional EV charging","reason":"New regulation landed this month."},
			{"phrase":"heat pump subsidies","reason":"Funding round reopened."}]`,
		grounding: []llm.GroundingSource{
			{Title: "bidirectional EV charging", URL: "https://example.com/v2g"},
		},
	}

	c := NewTrendsCollector(fake)
	docs := c.Collect(context.Background(), testConfig())
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if !fake.lastOpts.Grounding {
		t.Error("trends call must request grounding")
	}
	if docs[0].SourceURL != "https://example.com/v2g" {
		t.Errorf("grounding source not attached: %q", docs[0].SourceURL)
	}
	if docs[0].Source != "trends" {
		t.Errorf("unexpected source tag: %q", docs[0].Source)
	}
}

func TestTrendsCollectorLLMFailure(t *testing.T) {
	c := NewTrendsCollector(&fakeLLM{err: errors.New("quota exhausted")})
	if docs := c.Collect(context.Background(), testConfig()); len(docs) != 0 {
		t.Errorf("expected no documents on LLM failure, got %d", len(docs))
	}
}
