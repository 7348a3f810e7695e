package corpus

import (
	"context"
	"fmt"

	agerrors "github.com/answergate/answergate/pkg/errors"
	"github.com/answergate/answergate/pkg/postgres"
)

// LoadPostgres reads the document collection from a table once at startup,
// ordered by position so the collection order is stable across restarts.
// The table needs (position int, id text, title text, body text) columns.
func LoadPostgres(ctx context.Context, client *postgres.Client, table string) ([]Document, error) {
	rows, err := client.DB.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, title, body FROM %s ORDER BY position ASC`, table),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: querying %s: %v", agerrors.ErrMalformedCorpus, table, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Body); err != nil {
			return nil, fmt.Errorf("%w: scanning row %d: %v", agerrors.ErrMalformedCorpus, len(docs), err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", agerrors.ErrMalformedCorpus, table, err)
	}
	if err := Validate(docs); err != nil {
		return nil, err
	}
	return docs, nil
}
