// Package composer assembles the final answer from gated documents. It is
// deterministic text concatenation: no model calls, no randomness.
package composer

import (
	"fmt"
	"strings"

	"github.com/answergate/answergate/internal/gate"
)

// answerPrefix opens every non-empty answer.
const answerPrefix = "Based on the documents you are authorized to access, here's what I found:"

// AnswerResult is the caller-facing outcome of one query.
type AnswerResult struct {
	Answer  string   `json:"answer"`
	Used    []string `json:"used_documents"`
	Blocked []string `json:"blocked_documents"`
}

// Compose builds the answer text from the allowed documents, in rank
// order. When nothing is allowed it returns ok=false; the transport layer
// maps that to a client error, since the caller's fix is asking for
// different content, not retrying.
func Compose(question string, allowed gate.Allowed) (AnswerResult, bool) {
	docs := allowed.Docs()
	if len(docs) == 0 {
		return AnswerResult{Used: []string{}}, false
	}

	var b strings.Builder
	b.WriteString(answerPrefix)
	used := make([]string, 0, len(docs))
	for _, doc := range docs {
		fmt.Fprintf(&b, "\n- [%s] %s: %s", doc.ID, doc.Title, doc.Body)
		used = append(used, doc.ID)
	}

	return AnswerResult{
		Answer: b.String(),
		Used:   used,
	}, true
}
