package benchmark

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/answergate/answergate/internal/corpus"
	"github.com/answergate/answergate/internal/index"
	"github.com/answergate/answergate/internal/ranker"
)

var vocabulary = []string{
	"policy", "budget", "salary", "holiday", "benefits", "insurance",
	"quarterly", "report", "expansion", "strategy", "engineering",
	"marketing", "operations", "review", "schedule", "remote", "office",
	"travel", "expense", "security", "incident", "oncall", "performance",
}

func syntheticCollection(n int) []corpus.Document {
	rng := rand.New(rand.NewSource(42))
	docs := make([]corpus.Document, n)
	for i := range docs {
		words := make([]string, 40)
		for j := range words {
			words[j] = vocabulary[rng.Intn(len(vocabulary))]
		}
		docs[i] = corpus.Document{
			ID:    fmt.Sprintf("doc_%04d", i),
			Title: strings.Join(words[:4], " "),
			Body:  strings.Join(words[4:], " "),
		}
	}
	return docs
}

func BenchmarkIndexBuild(b *testing.B) {
	for _, size := range []int{100, 1000, 10000} {
		docs := syntheticCollection(size)
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := index.Build(docs); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch(b *testing.B) {
	queries := []string{
		"salary budget report",
		"holiday schedule",
		"quarterly engineering review",
		"travel expense policy",
	}
	for _, size := range []int{100, 1000, 10000} {
		ix, err := index.Build(syntheticCollection(size))
		if err != nil {
			b.Fatal(err)
		}
		r := ranker.New(ix)
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				result := r.Search(queries[i%len(queries)], 10)
				_ = result
			}
		})
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	ix, err := index.Build(syntheticCollection(1000))
	if err != nil {
		b.Fatal(err)
	}
	r := ranker.New(ix)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			result := r.Search("salary budget report", 10)
			_ = result
		}
	})
}
