package corpus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	agerrors "github.com/answergate/answergate/pkg/errors"
)

// corpusFile is the on-disk YAML layout: a single `documents` list whose
// order defines the collection order used for ranking tie-breaks.
type corpusFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadFile reads and validates a YAML document collection.
func LoadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", agerrors.ErrMalformedCorpus, path, err)
	}
	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", agerrors.ErrMalformedCorpus, path, err)
	}
	if err := Validate(f.Documents); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f.Documents, nil
}
