package usecase

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

type RankingOptions struct {
	CatalogPageSize int
	TopN            int
	Locale          string
}

func (o RankingOptions) normalize() RankingOptions {
	if o.CatalogPageSize <= 0 {
		o.CatalogPageSize = 20
	}
	if o.TopN <= 0 {
		o.TopN = 10
	}
	if strings.TrimSpace(o.Locale) == "" {
		o.Locale = "en"
	}
	return o
}

func (o RankingOptions) language() language.Tag {
	tag, err := language.Parse(o.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// rankDocuments orders documents in place for the given intent.
func rankDocuments(docs []domain.LogicalDocument, queryType domain.QueryType, opts RankingOptions) {
	if queryType == domain.QueryCatalogBrowse {
		sortAlphabetical(docs, opts.language())
		return
	}
	sortByRelevance(docs)
}

func sortAlphabetical(docs []domain.LogicalDocument, tag language.Tag) {
	// Collators are not safe for concurrent use; build one per call.
	col := collate.New(tag, collate.IgnoreCase)
	sort.SliceStable(docs, func(i, j int) bool {
		if c := col.CompareString(docs[i].Title, docs[j].Title); c != 0 {
			return c < 0
		}
		if c := col.CompareString(docs[i].Author, docs[j].Author); c != 0 {
			return c < 0
		}
		return docs[i].Key < docs[j].Key
	})
}

func sortByRelevance(docs []domain.LogicalDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if a.ChunksAvailable != b.ChunksAvailable {
			return a.ChunksAvailable > b.ChunksAvailable
		}
		if pa, pb := a.Provenance.Priority(), b.Provenance.Priority(); pa != pb {
			return pa > pb
		}
		return a.Key < b.Key
	})
}

// paginate slices ranked documents. Catalog intents page through the full
// set; other intents get a single top-N slice.
func paginate(docs []domain.LogicalDocument, cls domain.Classification, opts RankingOptions) domain.Page {
	total := len(docs)

	if cls.Type != domain.QueryCatalogBrowse {
		end := min(opts.TopN, total)
		page := domain.Page{
			Documents: docs[:end],
			Total:     total,
			Number:    1,
			Size:      opts.TopN,
			Remaining: total - end,
		}
		page.HasMore = page.Remaining > 0
		if page.HasMore {
			page.Warning = fmt.Sprintf("Showing the top %d of %d matching documents.", end, total)
		}
		return page
	}

	size := opts.CatalogPageSize
	if cls.RequestedCount > 0 {
		size = cls.RequestedCount
	}
	number := cls.Page
	if number <= 0 {
		number = 1
	}

	start := (number - 1) * size
	if start > total {
		start = total
	}
	end := min(start+size, total)

	page := domain.Page{
		Documents: docs[start:end],
		Total:     total,
		Number:    number,
		Size:      size,
		Remaining: total - end,
	}
	page.HasMore = page.Remaining > 0

	switch {
	case total == 0:
	case start == end:
		page.Warning = fmt.Sprintf("Page %d is past the end of the catalog; there are %d documents in total.", number, total)
	case page.HasMore && cls.Continuation && number == 1:
		page.Warning = fmt.Sprintf(
			"Showing documents %d-%d of %d from the start of the catalog. Page position is not kept between messages; request page %d to see the next %d.",
			start+1, end, total, number+1, min(size, page.Remaining),
		)
	case page.HasMore:
		page.Warning = fmt.Sprintf(
			"Showing documents %d-%d of %d. %d more available; request page %d to see more.",
			start+1, end, total, page.Remaining, number+1,
		)
	}
	return page
}
