package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
)

const maxRequestedCount = 50

var (
	greetingRe = regexp.MustCompile(`^\s*(hi|hello|hey|howdy|greetings|yo|good\s+(morning|afternoon|evening)|thanks|thank\s+you|thx|ok|okay|bye|goodbye)(\s+(there|everyone|again|so\s+much|a\s+lot))?[\s!.,?]*$`)

	catalogRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(all|every|complete|entire|full)\b(\s+\w+){0,3}?\s+(books?|documents?|titles?|videos?|talks?|catalog(ue)?|collection|library)\b`),
		regexp.MustCompile(`\bwhat\s+(books?|documents?|videos?|talks?|titles?)\s+(do\s+you\s+have|are\s+(there|available)|have\s+you\s+got|can\s+i\s+(read|find))\b`),
		regexp.MustCompile(`\b\d+\s+(books?|documents?|videos?|titles?)\b`),
		regexp.MustCompile(`\b(list|browse)\s+(me\s+)?(the\s+|your\s+)?(books|documents|videos|titles|catalog(ue)?|library)\b`),
		regexp.MustCompile(`\b(next|another)\s+(\d+\s+)?(books?|documents?|videos?|titles?|page)\b`),
	}
	recommendationRe = regexp.MustCompile(`\b(recommend\w*|suggest\w*|best|should\s+i\s+(read|watch|start)|beginners?|where\s+(do|should)\s+i\s+start)\b`)
	specificRes      = []*regexp.Regexp{
		regexp.MustCompile(`\b(about|on|regarding|concerning)\s+\w+`),
		regexp.MustCompile(`\b(find|search|look\s+for|looking\s+for|locate)\b`),
	}
	questionRe = regexp.MustCompile(`^\s*(what|who|how|why|when|where|which|explain|describe|define|tell\s+me)\b|\b(what\s+is|explain)\b`)

	booksRe       = regexp.MustCompile(`\b(books?|documents?)\b`)
	videosRe      = regexp.MustCompile(`\b(videos?|talks?)\b`)
	pageRe        = regexp.MustCompile(`\bpage\s+(\d+)\b`)
	moreCountRe   = regexp.MustCompile(`\b(next|another|more)\s+(\d+)\b`)
	continueRe    = regexp.MustCompile(`\b(next|another)\b`)
	bareCountRe   = regexp.MustCompile(`\b(\d+)\s+(books?|documents?|videos?|titles?)\b`)
)

type ClassifierOptions struct {
	// AnalysisTimeout bounds the query analyzer call. Under a parent deadline
	// the analyzer also gets at most a quarter of the remaining time.
	AnalysisTimeout time.Duration
}

func (o ClassifierOptions) normalize() ClassifierOptions {
	if o.AnalysisTimeout <= 0 {
		o.AnalysisTimeout = 2 * time.Second
	}
	return o
}

// QueryClassifier decides how a query should be searched.
type QueryClassifier struct {
	analyzer ports.QueryAnalyzer
	opts     ClassifierOptions
	logger   *slog.Logger
}

// NewQueryClassifier builds a classifier. analyzer may be nil, in which case
// only keyword heuristics are used.
func NewQueryClassifier(analyzer ports.QueryAnalyzer, opts ClassifierOptions, logger *slog.Logger) *QueryClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryClassifier{analyzer: analyzer, opts: opts.normalize(), logger: logger}
}

// Classify never fails: analysis errors fall back to the heuristic decision.
func (c *QueryClassifier) Classify(ctx context.Context, query string, history []domain.ChatMessage, page int) domain.Classification {
	cls := classifyHeuristic(query)
	if page > 0 {
		cls.Page = page
		cls.Continuation = false
	}
	if !cls.NeedsRetrieval {
		return cls
	}

	cls.SemanticQuery = resolvePronouns(query, history)

	if c.analyzer != nil {
		analysis, err := c.analyze(ctx, query, history)
		if err != nil {
			c.logger.Warn("classification_fallback",
				"query_type", string(cls.Type),
				"error", domain.WrapError(domain.ErrClassificationFallback, "analyze query", err),
			)
		} else {
			applyAnalysis(&cls, analysis)
		}
	}

	cls.SemanticQuery = expandWithEntities(cls.SemanticQuery, cls.Entities)
	return cls
}

func (c *QueryClassifier) analyze(ctx context.Context, query string, history []domain.ChatMessage) (domain.QueryAnalysis, error) {
	budget := analysisBudget(ctx, c.opts.AnalysisTimeout, time.Now())
	analyzeCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	return c.analyzer.AnalyzeQuery(analyzeCtx, query, history)
}

// analysisBudget leaves at least three quarters of the parent deadline to
// the retrieval strategies.
func analysisBudget(ctx context.Context, limit time.Duration, now time.Time) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	share := deadline.Sub(now) / 4
	if share <= 0 {
		return time.Millisecond
	}
	return min(limit, share)
}

func classifyHeuristic(query string) domain.Classification {
	q := strings.ToLower(strings.TrimSpace(query))
	cls := domain.Classification{
		Filter:         contentFilterFor(q),
		Page:           1,
		NeedsRetrieval: true,
		SemanticQuery:  strings.TrimSpace(query),
	}

	if m := pageRe.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			cls.Page = n
		}
	} else {
		cls.Continuation = continueRe.MatchString(q)
	}
	cls.RequestedCount = requestedCount(q)

	switch {
	case greetingRe.MatchString(q):
		cls.Type = domain.QueryDirectQuestion
		cls.Confidence = 0.80
		cls.NeedsRetrieval = false
	case matchesAny(catalogRes, q):
		cls.Type = domain.QueryCatalogBrowse
		cls.Confidence = 0.95
	case recommendationRe.MatchString(q):
		cls.Type = domain.QueryRecommendation
		cls.Confidence = 0.90
	case matchesAny(specificRes, q):
		cls.Type = domain.QuerySpecificSearch
		cls.Confidence = 0.85
	case questionRe.MatchString(q) || strings.HasSuffix(q, "?"):
		cls.Confidence = 0.80
		cls.Entities = properNounSpans(query)
		if len(cls.Entities) > 0 {
			cls.Type = domain.QueryHybrid
		} else {
			cls.Type = domain.QueryDirectQuestion
		}
	default:
		cls.Type = domain.QueryHybrid
		cls.Confidence = 0.60
	}

	if cls.Type != domain.QueryCatalogBrowse {
		cls.RequestedCount = 0
		cls.Continuation = false
	}
	return cls
}

func contentFilterFor(q string) domain.ContentFilter {
	books := booksRe.MatchString(q)
	videos := videosRe.MatchString(q)
	switch {
	case books && !videos:
		return domain.ContentBooks
	case videos && !books:
		return domain.ContentVideos
	default:
		return domain.ContentAll
	}
}

func requestedCount(q string) int {
	for _, re := range []*regexp.Regexp{moreCountRe, bareCountRe} {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		raw := m[2]
		if re == bareCountRe {
			raw = m[1]
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			continue
		}
		if n > maxRequestedCount {
			n = maxRequestedCount
		}
		return n
	}
	return 0
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func applyAnalysis(cls *domain.Classification, analysis domain.QueryAnalysis) {
	cls.Analyzed = true
	cls.Entities = mergeUnique(cls.Entities, analysis.Entities)
	cls.Topics = mergeUnique(cls.Topics, analysis.Topics)
	if resolved := strings.TrimSpace(analysis.ResolvedQuery); resolved != "" {
		cls.SemanticQuery = resolved
	}
	if len(analysis.Entities) > 0 {
		if cls.Type == domain.QueryDirectQuestion {
			cls.Type = domain.QueryHybrid
		}
		cls.Confidence += 0.05
		if cls.Confidence > 1 {
			cls.Confidence = 1
		}
	}
}

// resolvePronouns appends referents from recent history to queries that
// contain a pronoun. History never feeds retrieval on its own.
func resolvePronouns(query string, history []domain.ChatMessage) string {
	query = strings.TrimSpace(query)
	if len(history) == 0 || !containsPronoun(splitWords(query)) {
		return query
	}

	const lookback = 3
	for i := len(history) - 1; i >= 0 && i >= len(history)-lookback; i-- {
		content := history[i].Content
		refs := quotedTitles(content)
		if len(refs) == 0 {
			refs = properNounSpans(content)
		}
		if len(refs) == 0 {
			continue
		}
		if len(refs) > 2 {
			refs = refs[:2]
		}
		return query + " " + strings.Join(refs, " ")
	}
	return query
}

func expandWithEntities(query string, entities []string) string {
	lower := strings.ToLower(query)
	var b strings.Builder
	b.WriteString(query)
	for _, entity := range entities {
		entity = strings.TrimSpace(entity)
		if entity == "" || strings.Contains(lower, strings.ToLower(entity)) {
			continue
		}
		b.WriteString(" ")
		b.WriteString(entity)
	}
	return b.String()
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, v := range list {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if v == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
