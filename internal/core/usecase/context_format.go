package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

const (
	contextHeaderFmt = "=== DOCUMENT CONTEXT (%d of %d total) ==="
	contextEndMarker = "=== END OF DOCUMENT CONTEXT ==="
	omissionReserve  = 64
)

type FormatterOptions struct {
	MaxChars     int
	PreviewChars int
}

func (o FormatterOptions) normalize() FormatterOptions {
	if o.MaxChars <= 0 {
		o.MaxChars = 12000
	}
	if o.PreviewChars <= 0 {
		o.PreviewChars = 200
	}
	return o
}

// formatContext renders the page into a bounded block delimited by explicit
// header and end markers. Catalog pages carry previews; targeted pages carry
// the representative content, cut to fit the remaining budget.
func formatContext(page domain.Page, queryType domain.QueryType, opts FormatterOptions) string {
	if len(page.Documents) == 0 {
		var b strings.Builder
		fmt.Fprintf(&b, contextHeaderFmt, 0, page.Total)
		b.WriteString("\nNo documents matched this request.\n")
		if page.Warning != "" {
			b.WriteString("NOTE: " + page.Warning + "\n")
		}
		b.WriteString(contextEndMarker)
		return b.String()
	}

	footer := contextEndMarker
	if page.Warning != "" {
		footer = "NOTE: " + page.Warning + "\n" + contextEndMarker
	}
	// The header is sized for every document; the rendered count is never wider.
	widestHeader := fmt.Sprintf(contextHeaderFmt, len(page.Documents), page.Total) + "\n"
	budget := opts.MaxChars - utf8.RuneCountInString(widestHeader) - utf8.RuneCountInString(footer)

	offset := (page.Number - 1) * page.Size
	if queryType != domain.QueryCatalogBrowse || offset < 0 {
		offset = 0
	}

	var entries strings.Builder
	rendered := 0
	for i, doc := range page.Documents {
		head := entryHeader(offset+i+1, doc)
		// Keep room for the omission line.
		available := budget - utf8.RuneCountInString(head) - omissionReserve
		if available < 0 {
			break
		}

		content := strings.TrimSpace(doc.Content)
		if queryType == domain.QueryCatalogBrowse {
			content = truncateRunes(content, opts.PreviewChars)
		}
		const contentLabel = "    Content: "
		maxContent := available - utf8.RuneCountInString(contentLabel) - 1
		if maxContent <= 3 {
			content = ""
		} else if utf8.RuneCountInString(content) > maxContent {
			content = truncateRunes(content, maxContent-3)
		}

		entry := head
		if content != "" {
			entry += contentLabel + content + "\n"
		}
		entries.WriteString(entry)
		budget -= utf8.RuneCountInString(entry)
		rendered++
	}

	var b strings.Builder
	fmt.Fprintf(&b, contextHeaderFmt, rendered, page.Total)
	b.WriteString("\n")
	b.WriteString(entries.String())
	if omitted := len(page.Documents) - rendered; omitted > 0 {
		fmt.Fprintf(&b, "(%d more documents omitted to fit the context limit)\n", omitted)
	}
	b.WriteString(footer)
	return b.String()
}

func entryHeader(n int, doc domain.LogicalDocument) string {
	author := doc.Author
	if author == "" {
		author = "Unknown"
	}
	docType := doc.DocType
	if docType == "" {
		docType = "book"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%d] Title: %s\n", n, doc.Title)
	fmt.Fprintf(&b, "    Author: %s\n", author)
	fmt.Fprintf(&b, "    Type: %s\n", docType)
	if doc.TotalChunks > 0 {
		fmt.Fprintf(&b, "    Sections matched: %d of %d\n", doc.ChunksAvailable, doc.TotalChunks)
	}
	return b.String()
}

const answerInstructions = `You are a librarian assistant answering questions about the document collection.
Rules:
- Only use the documents listed between the DOCUMENT CONTEXT markers.
- Never invent titles, authors or documents that are not listed there.
- When listing documents, list exactly the documents shown, in the order shown.
- If the context does not contain the answer, say so plainly.
- If a NOTE says more documents are available, tell the user how to see them.`

const conversationalInstructions = `You are a librarian assistant for a document collection.
Reply briefly and politely. Do not name or describe any specific document.`

func buildSystemPrompt(result *domain.RetrievalResult) string {
	if !result.Classification.NeedsRetrieval {
		return conversationalInstructions
	}
	return answerInstructions + "\n\n" + result.Context
}
