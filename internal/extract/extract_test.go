package extract

import (
	"strings"
	"testing"

	"github.com/parleychat/parley/internal/convo"
)

func TestExtract_NoFences(t *testing.T) {
	content := "Just a plain answer with no code."
	cleaned, artifacts := Extract(content)
	if cleaned != content {
		t.Errorf("cleaned = %q, want unchanged", cleaned)
	}
	if artifacts != nil {
		t.Errorf("artifacts = %v, want nil", artifacts)
	}
}

func TestExtract_RegularCodeBlockUntouched(t *testing.T) {
	content := "Here is Go:\n\n```go\nfunc main() {}\n```\n\nDone."
	cleaned, artifacts := Extract(content)
	if cleaned != content {
		t.Errorf("cleaned = %q, want unchanged", cleaned)
	}
	if len(artifacts) != 0 {
		t.Errorf("artifacts = %v, want none for non-renderable language", artifacts)
	}
}

func TestExtract_MermaidBlock(t *testing.T) {
	content := "The flow looks like this:\n\n```mermaid\ngraph TD\n  A --> B\n```\n\nThat covers it."

	cleaned, artifacts := Extract(content)

	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(artifacts))
	}
	a := artifacts[0]
	if a.Kind != convo.ArtifactMermaid {
		t.Errorf("Kind = %q, want mermaid", a.Kind)
	}
	if a.Content != "graph TD\n  A --> B" {
		t.Errorf("Content = %q", a.Content)
	}
	if strings.Contains(cleaned, "mermaid") || strings.Contains(cleaned, "graph TD") {
		t.Errorf("cleaned text still contains the block: %q", cleaned)
	}
	if !strings.Contains(cleaned, "The flow looks like this:") || !strings.Contains(cleaned, "That covers it.") {
		t.Errorf("surrounding prose was damaged: %q", cleaned)
	}
}

func TestExtract_MultipleKinds(t *testing.T) {
	content := "A:\n```svg\n<svg></svg>\n```\nB:\n```html\n<p>hi</p>\n```\nC:\n```mermaid\npie\n```\n"

	cleaned, artifacts := Extract(content)

	if len(artifacts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(artifacts))
	}
	kinds := map[string]bool{}
	for _, a := range artifacts {
		kinds[a.Kind] = true
	}
	for _, want := range []string{convo.ArtifactSVG, convo.ArtifactHTML, convo.ArtifactMermaid} {
		if !kinds[want] {
			t.Errorf("missing artifact kind %q", want)
		}
	}
	for _, frag := range []string{"<svg>", "<p>hi</p>", "pie"} {
		if strings.Contains(cleaned, frag) {
			t.Errorf("cleaned text still contains %q: %q", frag, cleaned)
		}
	}
}

func TestExtract_StableIDs(t *testing.T) {
	content := "```mermaid\ngraph LR\n```\n"

	_, first := Extract(content)
	_, second := Extract(content)

	if first[0].ID != second[0].ID {
		t.Errorf("IDs differ across extractions: %q vs %q", first[0].ID, second[0].ID)
	}
}

func TestExtract_UnterminatedFence(t *testing.T) {
	content := "Before.\n```mermaid\ngraph TD\n  A --> B"

	cleaned, artifacts := Extract(content)
	if len(artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(artifacts))
	}
	if strings.Contains(cleaned, "graph TD") {
		t.Errorf("cleaned = %q, block not removed", cleaned)
	}
	if !strings.Contains(cleaned, "Before.") {
		t.Errorf("cleaned = %q, prose lost", cleaned)
	}
}

func TestFromPlots(t *testing.T) {
	plots := []convo.Plot{
		{Format: "png", Data: "aGVsbG8="},
		{Format: "svg", Data: "PHN2Zz4="},
	}

	artifacts := FromPlots("data_analyst", plots)

	if len(artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(artifacts))
	}
	for i, a := range artifacts {
		if a.Kind != convo.ArtifactImage {
			t.Errorf("artifact %d Kind = %q, want image", i, a.Kind)
		}
		if a.ToolName != "data_analyst" {
			t.Errorf("artifact %d ToolName = %q", i, a.ToolName)
		}
		if len(a.Images) != 1 {
			t.Errorf("artifact %d Images = %d, want 1", i, len(a.Images))
		}
	}
	if artifacts[0].ID == artifacts[1].ID {
		t.Error("distinct plots produced identical IDs")
	}
}

func TestFromPlots_Empty(t *testing.T) {
	if got := FromPlots("tool", nil); got != nil {
		t.Errorf("FromPlots(nil) = %v, want nil", got)
	}
}

func TestArtifactID_DeterministicAcrossSources(t *testing.T) {
	// A tool-delivered artifact and a text-derived artifact with the same
	// kind and content must collide so the store deduplicates them.
	a := ArtifactID(convo.ArtifactMermaid, "graph TD")
	b := ArtifactID(convo.ArtifactMermaid, "graph TD")
	c := ArtifactID(convo.ArtifactHTML, "graph TD")

	if a != b {
		t.Error("same kind+content produced different IDs")
	}
	if a == c {
		t.Error("different kinds produced the same ID")
	}
}
