package export

import (
	"context"
	"errors"
	"testing"

	"scout/internal/core"
)

type fakeSink struct {
	actions map[string]Action
	errs    map[string]error
	calls   []string
}

func (f *fakeSink) UpsertTopic(_ context.Context, topic core.Topic) (Action, error) {
	f.calls = append(f.calls, topic.ID)
	if err := f.errs[topic.ID]; err != nil {
		return "", err
	}
	if action, ok := f.actions[topic.ID]; ok {
		return action, nil
	}
	return ActionCreated, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) MarkTopicPublished(id string) error {
	f.published = append(f.published, id)
	return nil
}

func topics(ids ...string) []core.Topic {
	out := make([]core.Topic, len(ids))
	for i, id := range ids {
		out[i] = core.Topic{ID: id, Title: id}
	}
	return out
}

func TestExportBatchCounts(t *testing.T) {
	sink := &fakeSink{actions: map[string]Action{
		"a": ActionCreated,
		"b": ActionUpdated,
		"c": ActionSkipped,
	}}
	pub := &fakePublisher{}
	e := New(sink, pub)

	result, err := e.ExportBatch(context.Background(), topics("a", "b", "c"), false)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if result.Created != 1 || result.Updated != 1 || result.Skipped != 1 || result.Failed != 0 {
		t.Errorf("counts = %+v", result)
	}
	// Skipped topics are not re-published.
	if len(pub.published) != 2 {
		t.Errorf("published = %v", pub.published)
	}
}

func TestExportBatchSkipErrors(t *testing.T) {
	sink := &fakeSink{errs: map[string]error{"b": errors.New("sink down")}}
	e := New(sink, nil)

	result, err := e.ExportBatch(context.Background(), topics("a", "b", "c"), true)
	if err != nil {
		t.Fatalf("skip_errors batch returned error: %v", err)
	}
	if result.Failed != 1 || result.Created != 2 {
		t.Errorf("counts = %+v", result)
	}
	if len(sink.calls) != 3 {
		t.Errorf("batch stopped early: %v", sink.calls)
	}
}

func TestExportBatchAbortsWithoutSkipErrors(t *testing.T) {
	sink := &fakeSink{errs: map[string]error{"a": errors.New("sink down")}}
	e := New(sink, nil)

	_, err := e.ExportBatch(context.Background(), topics("a", "b"), false)
	if err == nil {
		t.Fatal("expected abort on first failure")
	}
	if len(sink.calls) != 1 {
		t.Errorf("batch continued after failure: %v", sink.calls)
	}
}

func TestMarkdownSinkLifecycle(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewMarkdownSink(dir)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}

	topic := core.Topic{ID: "battery-storage", Title: "Battery storage", Priority: 8}
	action, err := sink.UpsertTopic(context.Background(), topic)
	if err != nil || action != ActionCreated {
		t.Fatalf("first upsert = %v, %v", action, err)
	}

	action, err = sink.UpsertTopic(context.Background(), topic)
	if err != nil || action != ActionSkipped {
		t.Fatalf("identical upsert = %v, %v", action, err)
	}

	topic.ResearchReport = "New findings."
	action, err = sink.UpsertTopic(context.Background(), topic)
	if err != nil || action != ActionUpdated {
		t.Fatalf("changed upsert = %v, %v", action, err)
	}
}
