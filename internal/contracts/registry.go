package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/eventpulse/eventpulse/internal/platform/logger"
)

// LoadResult carries the parsed contract plus the identity of the file it
// came from, so lineage can pin the exact contract version an ingestion used.
type LoadResult struct {
	Contract *Contract
	Path     string
	SHA256   string
}

// Registry loads versioned contract definitions from a directory of
// <dataset>.yaml files. Contracts are re-read on every load; the files are
// the source of truth and may change between ingestions.
type Registry struct {
	dir string
	log *logger.Logger
}

func NewRegistry(dir string, baseLog *logger.Logger) *Registry {
	return &Registry{
		dir: dir,
		log: baseLog.With("component", "ContractRegistry"),
	}
}

func (r *Registry) Load(dataset string) (*LoadResult, error) {
	dataset, err := NormalizeDataset(dataset)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(r.dir, dataset+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: dataset %q (looked at %s)", ErrNotFound, dataset, path)
		}
		return nil, fmt.Errorf("read contract for %q: %w", dataset, err)
	}

	contract, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if contract.Dataset != dataset {
		return nil, fmt.Errorf("%w: contract file %s declares dataset %q", ErrInvalidContract, path, contract.Dataset)
	}

	sum := sha256.Sum256(raw)
	return &LoadResult{
		Contract: contract,
		Path:     path,
		SHA256:   hex.EncodeToString(sum[:]),
	}, nil
}
