// Package ranker scores documents against a question using TF-IDF over the
// immutable index. Ranking is permission-agnostic: it runs before any
// authorization check so the same ordering holds for every caller.
package ranker

import (
	"math"
	"sort"

	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/index"
	"github.com/answergate/answergate/internal/tokenizer"
)

// ScoredCandidate pairs a document with its relevance score. Score is
// always > 0: documents with no query-token overlap are excluded rather
// than scored zero.
type ScoredCandidate struct {
	Doc   corpus.Document
	Score float64
}

// Ranker is a pure function of the Index and is safe to call concurrently
// without synchronisation.
type Ranker struct {
	index *index.Index
}

func New(ix *index.Index) *Ranker {
	return &Ranker{index: ix}
}

// Search tokenises the query, scores every document, and returns at most
// topK candidates sorted by score descending. Ties resolve to original
// collection order, which makes truncation at the topK boundary
// deterministic. A query with no recognisable tokens matches nothing.
func (r *Ranker) Search(query string, topK int) []ScoredCandidate {
	tokens := tokenizer.Tokenize(query)
	if len(tokens) == 0 || topK <= 0 {
		return nil
	}
	distinct := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		distinct[token] = struct{}{}
	}

	n := r.index.DocCount()
	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, n)
	for pos := 0; pos < n; pos++ {
		var score float64
		for token := range distinct {
			tf := r.index.TermFreq(pos, token)
			if tf == 0 {
				continue
			}
			idf := math.Log(float64(n+1)/float64(r.index.DocFreq(token)+1)) + 1
			score += float64(tf) * idf
		}
		if score == 0 {
			continue
		}
		candidates = append(candidates, scored{pos: pos, score: score})
	}

	// candidates is already in collection order, so a stable sort on score
	// alone yields the documented tie-break.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		results[i] = ScoredCandidate{
			Doc:   r.index.Doc(c.pos),
			Score: c.score,
		}
	}
	return results
}
