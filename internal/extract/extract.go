// Package extract performs deterministic, regex-based extraction of
// code element definitions and references from documentation chunks.
package extract

import (
	"regexp"
	"sort"
	"strings"

	"docrag/internal/doc"
)

// ElementKind identifies the construct kind of an extracted element.
type ElementKind string

const (
	KindFunction  ElementKind = "function"
	KindClass     ElementKind = "class"
	KindStruct    ElementKind = "struct"
	KindInterface ElementKind = "interface"
	KindEnum      ElementKind = "enum"
)

// ReferenceKind identifies how a chunk refers to an element.
type ReferenceKind string

const (
	RefCalls         ReferenceKind = "calls"
	RefMentions      ReferenceKind = "mentions"
	RefTypeReference ReferenceKind = "type_reference"
)

// CodeElement is a named construct defined in a chunk.
type CodeElement struct {
	Name        string
	Kind        ElementKind
	Signature   string
	SourceChunk string
	LineNumber  int
}

// Reference is textual evidence that a chunk names or invokes an
// element defined elsewhere. Confidence is in [0, 1].
type Reference struct {
	SourceChunk   string
	TargetElement string
	Kind          ReferenceKind
	Receiver      string
	Confidence    float64
}

// Reference confidence by extraction heuristic. Receiver-qualified
// calls are more reliable than bare identifier calls; a type position
// in a signature is the strongest signal of all.
const (
	methodCallConfidence   = 0.8
	functionCallConfidence = 0.7
	typeRefConfidence      = 0.9
)

var (
	// func foo(a: Int64, b: String): String
	functionDefPattern = regexp.MustCompile(`func\s+(\w+)\s*\(([^)]*)\)(?:\s*:\s*([^{` + "\n" + `]+))?`)

	classDefPattern     = regexp.MustCompile(`(?m)class\s+(\w+)(?:\s+extends\s+(\w+))?(?:\s*\{|\s*$|\s+)`)
	structDefPattern    = regexp.MustCompile(`(?m)struct\s+(\w+)(?:\s*\{|\s*$|\s+)`)
	interfaceDefPattern = regexp.MustCompile(`(?m)interface\s+(\w+)(?:\s*\{|\s*$|\s+)`)
	enumDefPattern      = regexp.MustCompile(`(?m)enum\s+(\w+)(?:\s*\{|\s*$|\s+)`)

	// obj.method(...)
	methodCallPattern = regexp.MustCompile(`(\w+)\.(\w+)\s*\(`)
	// function(...). The leading group stands in for a negative
	// lookbehind on [\w.], which Go's regexp does not support.
	functionCallPattern = regexp.MustCompile(`(^|[^\w.])([a-zA-Z_]\w*)\s*\(`)

	funcKeywordBefore = regexp.MustCompile(`\bfunc\s*$`)
	typeAnnotBefore   = regexp.MustCompile(`:\s*[^:]*$`)

	paramTypePattern = regexp.MustCompile(`\w+!?\s*:\s*([^=]+)`)
	baseTypePattern  = regexp.MustCompile(`^(\w+)`)
)

// methodCallFalsePositives are control keywords that match the
// receiver-call pattern but are never method names.
var methodCallFalsePositives = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "try": true,
}

// functionCallKeywords are identifiers excluded from bare-call
// extraction: language keywords and declaration markers.
var functionCallKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"case": true, "catch": true, "try": true,
	"func": true, "class": true, "struct": true, "interface": true,
	"enum": true, "var": true, "let": true,
}

// primitiveTypes are built-in types excluded from custom-type
// reference extraction.
var primitiveTypes = map[string]bool{
	"Int8": true, "Int16": true, "Int32": true, "Int64": true, "IntNative": true,
	"UInt8": true, "UInt16": true, "UInt32": true, "UInt64": true, "UIntNative": true,
	"Float16": true, "Float32": true, "Float64": true,
	"String": true, "Rune": true, "Bool": true, "Unit": true, "Byte": true,
	"Array": true, "ArrayList": true, "HashMap": true, "HashSet": true,
	"Option": true, "Result": true, "Iterator": true,
}

// Extractor extracts code elements and references from chunk content.
// It is a pure function of the content: no state, no randomness.
type Extractor struct{}

// NewExtractor creates an extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Elements finds every function and type definition in the chunk.
func (e *Extractor) Elements(chunk *doc.Chunk) []CodeElement {
	var elements []CodeElement
	elements = append(elements, e.functionDefinitions(chunk)...)
	elements = append(elements, e.typeDefinitions(chunk)...)
	return elements
}

// References finds receiver-qualified calls, bare identifier calls, and
// type references in function signatures.
func (e *Extractor) References(chunk *doc.Chunk) []Reference {
	var refs []Reference
	refs = append(refs, e.methodCalls(chunk)...)
	refs = append(refs, e.functionCalls(chunk)...)
	refs = append(refs, e.typeReferences(chunk)...)
	return refs
}

// ElementNames returns the sorted unique names of elements defined in
// the chunk. Satisfies doc.ElementNamer.
func (e *Extractor) ElementNames(chunk *doc.Chunk) []string {
	seen := make(map[string]bool)
	for _, elem := range e.Elements(chunk) {
		seen[elem.Name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Extractor) functionDefinitions(chunk *doc.Chunk) []CodeElement {
	var elements []CodeElement
	for _, idx := range functionDefPattern.FindAllStringSubmatchIndex(chunk.Content, -1) {
		name := group(chunk.Content, idx, 1)
		params := group(chunk.Content, idx, 2)
		returnType := strings.TrimSpace(group(chunk.Content, idx, 3))

		signature := "func " + name + "(" + params + ")"
		if returnType != "" {
			signature += ": " + returnType
		}

		elements = append(elements, CodeElement{
			Name:        name,
			Kind:        KindFunction,
			Signature:   signature,
			SourceChunk: chunk.ID,
			LineNumber:  lineAt(chunk, idx[0]),
		})
	}
	return elements
}

func (e *Extractor) typeDefinitions(chunk *doc.Chunk) []CodeElement {
	typePatterns := []struct {
		pattern *regexp.Regexp
		kind    ElementKind
	}{
		{classDefPattern, KindClass},
		{structDefPattern, KindStruct},
		{interfaceDefPattern, KindInterface},
		{enumDefPattern, KindEnum},
	}

	var elements []CodeElement
	for _, tp := range typePatterns {
		for _, idx := range tp.pattern.FindAllStringSubmatchIndex(chunk.Content, -1) {
			name := group(chunk.Content, idx, 1)

			signature := string(tp.kind) + " " + name
			if tp.kind == KindClass {
				if parent := group(chunk.Content, idx, 2); parent != "" {
					signature = "class " + name + " extends " + parent
				}
			}

			elements = append(elements, CodeElement{
				Name:        name,
				Kind:        tp.kind,
				Signature:   signature,
				SourceChunk: chunk.ID,
				LineNumber:  lineAt(chunk, idx[0]),
			})
		}
	}
	return elements
}

func (e *Extractor) methodCalls(chunk *doc.Chunk) []Reference {
	var refs []Reference
	for _, m := range methodCallPattern.FindAllStringSubmatch(chunk.Content, -1) {
		receiver, method := m[1], m[2]
		if methodCallFalsePositives[method] || len(method) <= 1 {
			continue
		}
		refs = append(refs, Reference{
			SourceChunk:   chunk.ID,
			TargetElement: method,
			Kind:          RefCalls,
			Receiver:      receiver,
			Confidence:    methodCallConfidence,
		})
	}
	return refs
}

func (e *Extractor) functionCalls(chunk *doc.Chunk) []Reference {
	var refs []Reference
	for _, idx := range functionCallPattern.FindAllStringSubmatchIndex(chunk.Content, -1) {
		name := group(chunk.Content, idx, 2)
		if !e.isLikelyFunctionCall(name, chunk.Content, idx[4]) {
			continue
		}
		refs = append(refs, Reference{
			SourceChunk:   chunk.ID,
			TargetElement: name,
			Kind:          RefCalls,
			Confidence:    functionCallConfidence,
		})
	}
	return refs
}

// isLikelyFunctionCall filters keywords and two call-site contexts
// that are not calls: identifiers directly after a definition keyword
// and identifiers in type-annotation position.
func (e *Extractor) isLikelyFunctionCall(name, content string, offset int) bool {
	if functionCallKeywords[name] || len(name) <= 1 {
		return false
	}
	before := content[:offset]
	if funcKeywordBefore.MatchString(before) {
		return false
	}
	if typeAnnotBefore.MatchString(before) {
		return false
	}
	return true
}

func (e *Extractor) typeReferences(chunk *doc.Chunk) []Reference {
	var refs []Reference
	for _, m := range functionDefPattern.FindAllStringSubmatch(chunk.Content, -1) {
		funcName, params, returnType := m[1], m[2], m[3]

		for _, paramType := range parseParameterTypes(params) {
			if isCustomType(paramType) {
				refs = append(refs, Reference{
					SourceChunk:   chunk.ID,
					TargetElement: paramType,
					Kind:          RefTypeReference,
					Receiver:      funcName,
					Confidence:    typeRefConfidence,
				})
			}
		}

		if rt := strings.TrimSpace(returnType); rt != "" {
			if base := baseType(rt); base != "" && isCustomType(base) {
				refs = append(refs, Reference{
					SourceChunk:   chunk.ID,
					TargetElement: base,
					Kind:          RefTypeReference,
					Receiver:      funcName,
					Confidence:    typeRefConfidence,
				})
			}
		}
	}
	return refs
}

// parseParameterTypes pulls base type names out of a parameter list,
// splitting on commas outside generic brackets so Array<String> stays
// a single parameter.
func parseParameterTypes(params string) []string {
	if strings.TrimSpace(params) == "" {
		return nil
	}

	var parts []string
	var current strings.Builder
	depth := 0
	for _, ch := range params {
		switch ch {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(current.String()))
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}

	var types []string
	for _, part := range parts {
		m := paramTypePattern.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		if base := baseType(strings.TrimSpace(m[1])); base != "" {
			types = append(types, base)
		}
	}
	return types
}

// baseType reduces a complex type to its base name: Array<String> -> Array.
func baseType(typeStr string) string {
	m := baseTypePattern.FindStringSubmatch(strings.TrimSpace(typeStr))
	if m == nil {
		return ""
	}
	return m[1]
}

// isCustomType is the heuristic for a user-defined type: capitalized,
// alphabetic, longer than one rune, and not a known primitive.
func isCustomType(name string) bool {
	if primitiveTypes[name] || len(name) <= 1 {
		return false
	}
	if name[0] < 'A' || name[0] > 'Z' {
		return false
	}
	for _, ch := range name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')) {
			return false
		}
	}
	return true
}

// group returns the text of capture group n from a SubmatchIndex result.
func group(s string, idx []int, n int) string {
	if idx[2*n] < 0 {
		return ""
	}
	return s[idx[2*n]:idx[2*n+1]]
}

// lineAt converts a byte offset in chunk content to a document line
// number, relative to the chunk's starting line.
func lineAt(chunk *doc.Chunk, offset int) int {
	return strings.Count(chunk.Content[:offset], "\n") + chunk.StartLine
}
