// Package ingest handles the offline setup path: chunking policy
// documents into the vector index and seeding the statistics table.
package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/soferos/govpulse/internal/policy"
)

// maxChunkLen caps chunk size so a single long section cannot drown
// out everything else in a retrieval.
const maxChunkLen = 1200

// PolicyIngester chunks markdown policy documents and stores them,
// embedded, in the policy index.
type PolicyIngester struct {
	index  *policy.Index
	source string
}

// NewPolicyIngester creates an ingester that files chunks under the
// given source name.
func NewPolicyIngester(index *policy.Index, source string) *PolicyIngester {
	return &PolicyIngester{index: index, source: source}
}

// IngestFile reads a markdown file, chunks it, and stores each chunk
// with its embedding. Returns the number of chunks stored.
func (p *PolicyIngester) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read file: %w", err)
	}
	return p.IngestString(ctx, string(data))
}

// IngestString chunks markdown content and stores each chunk.
// Existing chunks from the same source are removed first, so a
// document can be re-ingested cleanly.
func (p *PolicyIngester) IngestString(ctx context.Context, content string) (int, error) {
	if err := p.index.Clear(ctx, p.source); err != nil {
		return 0, fmt.Errorf("clear source: %w", err)
	}

	count := 0
	for _, chunk := range ChunkMarkdown([]byte(content)) {
		if err := p.index.Add(ctx, p.source, chunk); err != nil {
			return count, fmt.Errorf("store chunk: %w", err)
		}
		count++
	}
	return count, nil
}

// ChunkMarkdown splits markdown into retrieval-sized chunks. Each
// heading starts a new chunk, with the heading text kept as context
// for the paragraphs under it. Sections longer than maxChunkLen are
// split at paragraph boundaries.
func ChunkMarkdown(src []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var chunks []string
	var heading string
	var b strings.Builder

	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			chunks = append(chunks, s)
		}
		b.Reset()
	}

	startSection := func(h string) {
		flush()
		heading = h
		if heading != "" {
			b.WriteString(heading)
			b.WriteString("\n\n")
		}
	}

	appendBlock := func(block string) {
		if block == "" {
			return
		}
		if b.Len() > 0 && b.Len()+len(block) > maxChunkLen {
			flush()
			if heading != "" {
				b.WriteString(heading)
				b.WriteString("\n\n")
			}
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n\n") {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			startSection(linesText(n, src, " "))
		case *ast.Paragraph:
			appendBlock(linesText(n, src, " "))
		case *ast.List:
			var items []string
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if s := itemText(item, src); s != "" {
					items = append(items, "- "+s)
				}
			}
			appendBlock(strings.Join(items, "\n"))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			appendBlock(linesText(node, src, "\n"))
		case *ast.Blockquote:
			appendBlock(itemText(n, src))
		}
	}
	flush()

	return chunks
}

// linesText joins a block node's raw source lines with sep. Soft line
// breaks inside a paragraph become single spaces.
func linesText(node ast.Node, src []byte, sep string) string {
	segs := node.Lines()
	parts := make([]string, 0, segs.Len())
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		if s := strings.TrimSpace(string(seg.Value(src))); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

// itemText flattens a container node (list item, blockquote) whose
// children are block nodes.
func itemText(node ast.Node, src []byte) string {
	var parts []string
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		if s := linesText(child, src, " "); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
