package contracts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound means no contract file exists for the dataset.
	ErrNotFound = errors.New("contract not found")
	// ErrInvalidContract means the contract file exists but fails validation.
	ErrInvalidContract = errors.New("invalid contract")
)

var columnRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Logical column types after alias normalization.
const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
)

var typeAliases = map[string]string{
	"string":    TypeString,
	"text":      TypeString,
	"integer":   TypeInteger,
	"int":       TypeInteger,
	"number":    TypeNumber,
	"float":     TypeNumber,
	"double":    TypeNumber,
	"boolean":   TypeBoolean,
	"bool":      TypeBoolean,
	"datetime":  TypeDatetime,
	"timestamp": TypeDatetime,
}

// Drift policies.
const (
	DriftWarn  = "warn"
	DriftFail  = "fail"
	DriftAllow = "allow"
)

type ColumnSpec struct {
	Type     string   `yaml:"type" json:"type"`
	Required bool     `yaml:"required" json:"required"`
	Unique   bool     `yaml:"unique" json:"unique"`
	Min      *float64 `yaml:"min" json:"min,omitempty"`
	Max      *float64 `yaml:"max" json:"max,omitempty"`
}

// Columns preserves the declaration order of the contract file; the curated
// table is created with columns in this order.
type Columns struct {
	Order []string
	Specs map[string]ColumnSpec
}

func (c *Columns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: 'columns' must be a mapping", ErrInvalidContract)
	}
	c.Order = nil
	c.Specs = make(map[string]ColumnSpec, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var spec ColumnSpec
		if node.Content[i+1].Tag != "!!null" {
			if err := node.Content[i+1].Decode(&spec); err != nil {
				return fmt.Errorf("%w: column %q: %v", ErrInvalidContract, name, err)
			}
		}
		if _, dup := c.Specs[name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidContract, name)
		}
		c.Order = append(c.Order, name)
		c.Specs[name] = spec
	}
	return nil
}

func (c Columns) Get(name string) (ColumnSpec, bool) {
	spec, ok := c.Specs[name]
	return spec, ok
}

func (c Columns) Has(name string) bool {
	_, ok := c.Specs[name]
	return ok
}

type QualityRules struct {
	MaxNullFraction map[string]float64 `yaml:"max_null_fraction" json:"max_null_fraction,omitempty"`
}

// Contract is a dataset's declared column/quality/drift schema. Immutable
// once loaded.
type Contract struct {
	Dataset     string       `yaml:"dataset" json:"dataset"`
	Description string       `yaml:"description" json:"description"`
	PrimaryKey  string       `yaml:"primary_key" json:"primary_key,omitempty"`
	Columns     Columns      `yaml:"columns" json:"-"`
	Quality     QualityRules `yaml:"quality" json:"quality"`
	DriftPolicy string       `yaml:"drift_policy" json:"drift_policy,omitempty"`
}

// Parse parses and validates a contract YAML document. Type aliases are
// normalized (int -> integer, timestamp -> datetime, ...) so downstream code
// only ever sees the five logical types.
func Parse(raw []byte) (*Contract, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidContract)
	}
	var c Contract
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContract, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Contract) validate() error {
	dataset, err := NormalizeDataset(c.Dataset)
	if err != nil {
		return err
	}
	c.Dataset = dataset

	if len(c.Columns.Order) == 0 {
		return fmt.Errorf("%w: contract must declare a non-empty 'columns' mapping", ErrInvalidContract)
	}

	for _, name := range c.Columns.Order {
		if !columnRe.MatchString(name) {
			return fmt.Errorf("%w: invalid column name %q (use lowercase letters/numbers/underscore, start with a letter, max 63 chars)", ErrInvalidContract, name)
		}
		spec := c.Columns.Specs[name]
		t := strings.ToLower(strings.TrimSpace(spec.Type))
		if t == "" {
			t = TypeString
		}
		canonical, ok := typeAliases[t]
		if !ok {
			return fmt.Errorf("%w: unsupported type %q for column %q", ErrInvalidContract, spec.Type, name)
		}
		spec.Type = canonical
		c.Columns.Specs[name] = spec
	}

	if pk := strings.TrimSpace(c.PrimaryKey); pk != "" {
		if !c.Columns.Has(pk) {
			return fmt.Errorf("%w: primary_key %q must be present in columns", ErrInvalidContract, pk)
		}
		c.PrimaryKey = pk
	} else {
		c.PrimaryKey = ""
	}

	for col, thr := range c.Quality.MaxNullFraction {
		if !c.Columns.Has(col) {
			return fmt.Errorf("%w: quality.max_null_fraction references unknown column %q", ErrInvalidContract, col)
		}
		if thr < 0 || thr > 1 {
			return fmt.Errorf("%w: quality.max_null_fraction threshold for %q must be between 0 and 1", ErrInvalidContract, col)
		}
	}

	if dp := strings.ToLower(strings.TrimSpace(c.DriftPolicy)); dp != "" {
		switch dp {
		case DriftWarn, DriftFail, DriftAllow:
			c.DriftPolicy = dp
		default:
			return fmt.Errorf("%w: drift_policy must be one of warn|fail|allow, got %q", ErrInvalidContract, c.DriftPolicy)
		}
	} else {
		c.DriftPolicy = ""
	}

	return nil
}
