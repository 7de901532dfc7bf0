package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestMetrics_DumpText(t *testing.T) {
	m := New()

	m.ObserveQuery(true, 250*time.Millisecond)
	m.ObserveQuery(false, 100*time.Millisecond)
	m.ObserveToolExecution("status", true)
	m.ObserveLLMRequest("plan", true)
	m.ObserveFactLearned()

	text, err := m.DumpText()
	if err != nil {
		t.Fatalf("DumpText failed: %v", err)
	}

	for _, want := range []string{
		`agent_queries_total{status="success"} 1`,
		`agent_queries_total{status="error"} 1`,
		`agent_tool_executions_total{status="success",tool="status"} 1`,
		`agent_llm_requests_total{stage="plan",status="success"} 1`,
		`agent_facts_learned_total 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected dump to contain %q\ngot:\n%s", want, text)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	// None of these should panic.
	m.ObserveQuery(true, time.Second)
	m.ObserveToolExecution("status", false)
	m.ObserveLLMRequest("synthesize", true)
	m.ObserveFactLearned()

	text, err := m.DumpText()
	if err != nil {
		t.Fatalf("DumpText on nil: %v", err)
	}
	if text != "" {
		t.Errorf("Expected empty dump from nil metrics, got %q", text)
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.ObserveFactLearned()

	textB, err := b.DumpText()
	if err != nil {
		t.Fatalf("DumpText failed: %v", err)
	}
	if strings.Contains(textB, "agent_facts_learned_total 1") {
		t.Error("Metrics instances should not share a registry")
	}
}
