// Package extract scans finalized assistant text for embedded renderable
// fragments and converts tool visualization payloads into artifacts.
//
// Fenced code blocks whose language is a renderable kind (mermaid, svg,
// html) are lifted out of the text into artifacts; the cleaned text keeps
// everything else untouched. Artifact IDs are content-derived hashes so
// the same fragment extracted twice - or first delivered by a tool result
// and later re-derived from the final text - deduplicates naturally.
package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/parleychat/parley/internal/convo"
)

// renderableKinds maps fence languages to artifact kinds.
var renderableKinds = map[string]string{
	"mermaid": convo.ArtifactMermaid,
	"svg":     convo.ArtifactSVG,
	"html":    convo.ArtifactHTML,
}

type span struct {
	start, end int
}

// Extract returns the text with renderable fenced blocks removed, plus
// one artifact per removed block. Text without such blocks is returned
// unchanged (same string, no allocation).
func Extract(content string) (string, []convo.Artifact) {
	if !strings.Contains(content, "```") {
		return content, nil
	}

	src := []byte(content)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var artifacts []convo.Artifact
	var spans []span

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		kind, renderable := renderableKinds[strings.ToLower(string(fcb.Language(src)))]
		if !renderable || fcb.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		var body bytes.Buffer
		for i := 0; i < fcb.Lines().Len(); i++ {
			line := fcb.Lines().At(i)
			body.Write(line.Value(src))
		}

		first := fcb.Lines().At(0)
		last := fcb.Lines().At(fcb.Lines().Len() - 1)
		blockSpan, ok := fenceSpan(src, first.Start, last.Stop)
		if !ok {
			return ast.WalkContinue, nil
		}

		blockContent := strings.TrimRight(body.String(), "\n")
		artifacts = append(artifacts, convo.Artifact{
			ID:      ArtifactID(kind, blockContent),
			Kind:    kind,
			Title:   titleFor(kind, len(artifacts)+1),
			Content: blockContent,
		})
		spans = append(spans, blockSpan)
		return ast.WalkSkipChildren, nil
	})

	if len(spans) == 0 {
		return content, nil
	}
	return removeSpans(content, spans), artifacts
}

// FromPlots converts tool visualization payloads into image artifacts.
func FromPlots(toolName string, plots []convo.Plot) []convo.Artifact {
	if len(plots) == 0 {
		return nil
	}

	artifacts := make([]convo.Artifact, 0, len(plots))
	for i, p := range plots {
		artifacts = append(artifacts, convo.Artifact{
			ID:       ArtifactID(convo.ArtifactImage, p.Format+":"+p.Data),
			Kind:     convo.ArtifactImage,
			Title:    fmt.Sprintf("%s output %d", toolName, i+1),
			Images:   []convo.Plot{p},
			ToolName: toolName,
		})
	}
	return artifacts
}

// ArtifactID derives a stable identifier from an artifact's kind and
// content. Identical fragments always get the same ID regardless of how
// they were produced.
func ArtifactID(kind, content string) string {
	sum := sha256.Sum256([]byte(kind + "\x00" + content))
	return hex.EncodeToString(sum[:8])
}

// fenceSpan widens the inner content span [contentStart, contentStop) to
// cover the opening and closing fence lines, including the trailing
// newline of the closing fence when present.
func fenceSpan(src []byte, contentStart, contentStop int) (span, bool) {
	open := bytes.LastIndex(src[:contentStart], []byte("```"))
	if open < 0 {
		return span{}, false
	}
	// Back up to the start of the opening fence line.
	lineStart := bytes.LastIndexByte(src[:open], '\n') + 1

	closeIdx := bytes.Index(src[contentStop:], []byte("```"))
	if closeIdx < 0 {
		// Unterminated fence: goldmark treats it as running to EOF.
		return span{start: lineStart, end: len(src)}, true
	}
	end := contentStop + closeIdx + len("```")
	if end < len(src) && src[end] == '\n' {
		end++
	}
	return span{start: lineStart, end: end}, true
}

// removeSpans deletes the given byte ranges from content, collapsing the
// blank lines left behind.
func removeSpans(content string, spans []span) string {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	prev := 0
	for _, s := range spans {
		if s.start < prev {
			continue // overlapping span, already removed
		}
		b.WriteString(content[prev:s.start])
		prev = s.end
	}
	b.WriteString(content[prev:])

	cleaned := b.String()
	for strings.Contains(cleaned, "\n\n\n") {
		cleaned = strings.ReplaceAll(cleaned, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(cleaned)
}

func titleFor(kind string, n int) string {
	switch kind {
	case convo.ArtifactMermaid:
		return fmt.Sprintf("Diagram %d", n)
	case convo.ArtifactSVG:
		return fmt.Sprintf("Graphic %d", n)
	case convo.ArtifactHTML:
		return fmt.Sprintf("Markup %d", n)
	default:
		return fmt.Sprintf("Artifact %d", n)
	}
}
