package contracts

import (
	"fmt"
	"regexp"
	"strings"
)

// Dataset names become directory names, contract filenames and SQL
// identifiers (curated_<dataset>), so the rules are strict: lowercase
// letters/numbers/underscore, must start with a letter, max 63 chars.
var datasetRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// NormalizeDataset lowercases and validates a dataset name. Mixed-case input
// is accepted; anything that fails the pattern after normalization is
// rejected.
func NormalizeDataset(dataset string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(dataset))
	if d == "" {
		return "", fmt.Errorf("%w: dataset is required", ErrInvalidContract)
	}
	if !datasetRe.MatchString(d) {
		return "", fmt.Errorf("%w: invalid dataset name %q (use lowercase letters/numbers/underscore, start with a letter, max 63 chars)", ErrInvalidContract, dataset)
	}
	return d, nil
}
