package extract

import (
	"testing"

	"docrag/internal/doc"
)

func testChunk(content string) *doc.Chunk {
	return &doc.Chunk{
		ID:        "chunk-1",
		Content:   content,
		FilePath:  "docs/test.md",
		StartLine: 1,
		EndLine:   1 + countLines(content),
		Kind:      doc.KindCode,
	}
}

func countLines(s string) int {
	n := 0
	for _, ch := range s {
		if ch == '\n' {
			n++
		}
	}
	return n
}

func TestExtractFunctionDefinition(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("func parseConfig(path: String): Config {\n    return Config()\n}")

	elements := ex.Elements(chunk)

	var fn *CodeElement
	for i := range elements {
		if elements[i].Kind == KindFunction {
			fn = &elements[i]
			break
		}
	}
	if fn == nil {
		t.Fatal("expected a function element")
	}
	if fn.Name != "parseConfig" {
		t.Errorf("name = %q, want parseConfig", fn.Name)
	}
	if fn.Signature != "func parseConfig(path: String): Config" {
		t.Errorf("signature = %q", fn.Signature)
	}
	if fn.SourceChunk != "chunk-1" {
		t.Errorf("source chunk = %q", fn.SourceChunk)
	}
	if fn.LineNumber != 1 {
		t.Errorf("line = %d, want 1", fn.LineNumber)
	}
}

func TestExtractTypeDefinitions(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("class Parser extends Base {\n}\n\nstruct Token {\n}\n\ninterface Reader {\n}\n\nenum Color {\n}")

	got := make(map[string]ElementKind)
	for _, elem := range ex.Elements(chunk) {
		got[elem.Name] = elem.Kind
	}

	want := map[string]ElementKind{
		"Parser": KindClass,
		"Token":  KindStruct,
		"Reader": KindInterface,
		"Color":  KindEnum,
	}
	for name, kind := range want {
		if got[name] != kind {
			t.Errorf("%s: kind = %q, want %q", name, got[name], kind)
		}
	}

	for _, elem := range ex.Elements(chunk) {
		if elem.Name == "Parser" && elem.Signature != "class Parser extends Base" {
			t.Errorf("Parser signature = %q", elem.Signature)
		}
	}
}

func TestMethodCallReference(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("let result = parser.parse(input)")

	refs := ex.References(chunk)

	var found bool
	for _, ref := range refs {
		if ref.Kind == RefCalls && ref.TargetElement == "parse" && ref.Receiver == "parser" {
			found = true
			if ref.Confidence != 0.8 {
				t.Errorf("method call confidence = %v, want 0.8", ref.Confidence)
			}
		}
	}
	if !found {
		t.Error("expected a calls reference for parser.parse")
	}
}

func TestMethodCallKeywordFilter(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("obj.if(x)\nobj.for(y)")

	for _, ref := range ex.References(chunk) {
		if ref.TargetElement == "if" || ref.TargetElement == "for" {
			t.Errorf("keyword %q extracted as method call", ref.TargetElement)
		}
	}
}

func TestBareFunctionCall(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("let x = compute(a, b)")

	var found bool
	for _, ref := range ex.References(chunk) {
		if ref.Kind == RefCalls && ref.TargetElement == "compute" && ref.Receiver == "" {
			found = true
			if ref.Confidence != 0.7 {
				t.Errorf("bare call confidence = %v, want 0.7", ref.Confidence)
			}
		}
	}
	if !found {
		t.Error("expected a calls reference for compute")
	}
}

func TestQualifiedCallNotDoubleCounted(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("parser.parse(input)")

	// parse is preceded by a dot, so only the method-call pattern
	// should pick it up.
	for _, ref := range ex.References(chunk) {
		if ref.TargetElement == "parse" && ref.Receiver == "" {
			t.Error("qualified call extracted a second time as bare call")
		}
	}
}

func TestFunctionDefinitionNotACall(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("func helper(x: Int64) {\n}")

	for _, ref := range ex.References(chunk) {
		if ref.Kind == RefCalls && ref.TargetElement == "helper" {
			t.Error("definition extracted as a call")
		}
	}
}

func TestTypeReferences(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("func process(input: Token, count: Int64): Parser {\n}")

	got := make(map[string]Reference)
	for _, ref := range ex.References(chunk) {
		if ref.Kind == RefTypeReference {
			got[ref.TargetElement] = ref
		}
	}

	if _, ok := got["Token"]; !ok {
		t.Error("expected type reference for parameter type Token")
	}
	if _, ok := got["Parser"]; !ok {
		t.Error("expected type reference for return type Parser")
	}
	if _, ok := got["Int64"]; ok {
		t.Error("primitive Int64 extracted as type reference")
	}
	for _, ref := range got {
		if ref.Confidence != 0.9 {
			t.Errorf("type reference confidence = %v, want 0.9", ref.Confidence)
		}
		if ref.Receiver != "process" {
			t.Errorf("type reference receiver = %q, want process", ref.Receiver)
		}
	}
}

func TestGenericParameterType(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("func collect(items: MyList<String, Int64>): Unit {\n}")

	var found bool
	for _, ref := range ex.References(chunk) {
		if ref.Kind == RefTypeReference && ref.TargetElement == "MyList" {
			found = true
		}
	}
	if !found {
		t.Error("expected base type MyList from generic parameter")
	}
}

func TestIsCustomType(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"Parser", true},
		{"Int64", false},
		{"String", false},
		{"ArrayList", false},
		{"lowercase", false},
		{"X", false},
		{"My2Type", false},
	}
	for _, tc := range cases {
		if got := isCustomType(tc.name); got != tc.want {
			t.Errorf("isCustomType(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestElementNamesSortedUnique(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("func zeta() {\n}\n\nfunc alpha() {\n}\n\nfunc alpha() {\n}")

	names := ex.ElementNames(chunk)
	want := []string{"alpha", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestLineNumbersRelativeToChunkStart(t *testing.T) {
	ex := NewExtractor()
	chunk := testChunk("intro text\n\nfunc later() {\n}")
	chunk.StartLine = 10

	for _, elem := range ex.Elements(chunk) {
		if elem.Name == "later" && elem.LineNumber != 12 {
			t.Errorf("line = %d, want 12", elem.LineNumber)
		}
	}
}
