// Package index builds the immutable retrieval index. It is constructed
// once at process start from the full document collection and shared
// read-only by every request, so lookups need no synchronisation.
package index

import (
	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/tokenizer"
)

// Index holds per-document term frequencies and the collection-wide
// document-frequency table. There is no mutation API: incremental insert
// and delete are out of scope, and the frozen value is what makes
// lock-free concurrent ranking safe.
type Index struct {
	docs      []corpus.Document
	termFreqs []map[string]int
	docFreq   map[string]int
}

// Build validates the collection and constructs the Index. Each document's
// title and body are concatenated and tokenised; term counts are keyed by
// the document's position in the collection. An empty collection is valid
// and yields an index with no terms.
func Build(docs []corpus.Document) (*Index, error) {
	if err := corpus.Validate(docs); err != nil {
		return nil, err
	}
	ix := &Index{
		docs:      docs,
		termFreqs: make([]map[string]int, len(docs)),
		docFreq:   make(map[string]int),
	}
	for i, doc := range docs {
		tokens := tokenizer.Tokenize(doc.Title + " " + doc.Body)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		ix.termFreqs[i] = tf
		for token := range tf {
			ix.docFreq[token]++
		}
	}
	return ix, nil
}

// DocCount returns the number of documents in the collection.
func (ix *Index) DocCount() int {
	return len(ix.docs)
}

// Doc returns the document at the given collection position.
func (ix *Index) Doc(pos int) corpus.Document {
	return ix.docs[pos]
}

// Documents returns the collection in original order. Callers must treat
// the returned slice as read-only.
func (ix *Index) Documents() []corpus.Document {
	return ix.docs
}

// TermFreq returns how often term occurs in the document at pos.
func (ix *Index) TermFreq(pos int, term string) int {
	return ix.termFreqs[pos][term]
}

// DocFreq returns the number of documents containing term at least once.
func (ix *Index) DocFreq(term string) int {
	return ix.docFreq[term]
}

// TermCount returns the number of distinct terms across the collection.
func (ix *Index) TermCount() int {
	return len(ix.docFreq)
}
