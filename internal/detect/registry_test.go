package detect

import (
	"strings"
	"testing"
)

func TestRegistryResolveByNameAndAlias(t *testing.T) {
	r := NewRegistry()

	byName, err := r.Resolve("openai")
	if err != nil {
		t.Fatalf("resolve openai: %v", err)
	}
	if len(byName) != 1 || byName[0].Name() != "openai" {
		t.Fatalf("expected single openai detector, got %+v", byName)
	}

	byAlias, err := r.Resolve("claude")
	if err != nil {
		t.Fatalf("resolve alias claude: %v", err)
	}
	if len(byAlias) != 1 || byAlias[0].Name() != "anthropic" {
		t.Fatalf("expected anthropic detector via alias, got %+v", byAlias)
	}
}

func TestRegistryResolveAll(t *testing.T) {
	r := NewRegistry()
	all, err := r.Resolve("all")
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(all) != len(r.SupportedNames()) {
		t.Fatalf("expected %d detectors, got %d", len(r.SupportedNames()), len(all))
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("not-a-real-detector"); err == nil {
		t.Fatalf("expected error for unknown detector")
	} else if !strings.Contains(err.Error(), "supported") {
		t.Fatalf("expected error to list supported names, got %v", err)
	}
}

func TestDetectOpenAIKey(t *testing.T) {
	r := NewRegistry()
	detectors, err := r.Resolve("openai")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	content := "OPENAI_API_KEY=sk-proj-aB3dE5fG7hJ9kL1mN3oP5qR7sT9uV1wX\nother line"
	found := detectors[0].Detect(content, "config/.env")
	if len(found) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(found), found)
	}
	if found[0].LineNumber != 0 {
		t.Fatalf("expected 0-based line 0, got %d", found[0].LineNumber)
	}
	if found[0].KeyType != "openai" {
		t.Fatalf("expected key_type openai, got %s", found[0].KeyType)
	}
}

func TestDetectRejectsLowEntropy(t *testing.T) {
	r := NewRegistry()
	detectors, _ := r.Resolve("shodan")
	content := `SHODAN_API_KEY="aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"`
	found := detectors[0].Detect(content, "main.py")
	if len(found) != 0 {
		t.Fatalf("expected low-entropy candidate to be filtered, got %+v", found)
	}
}

func TestShannonEntropyMonotonic(t *testing.T) {
	low := shannonEntropy(strings.Repeat("a", 32))
	high := shannonEntropy("Zq7!kP2#mW9@xR4$bN6^")
	if low >= high {
		t.Fatalf("expected repeated-char entropy (%f) < varied entropy (%f)", low, high)
	}
}
