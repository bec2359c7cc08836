package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/tabular"
)

// Column is one observed (name, logical type) pair.
type Column struct {
	Name        string `json:"name"`
	LogicalType string `json:"logical_type"`
}

// Observation is the stable schema representation for one batch. Columns are
// sorted by name so the fingerprint is independent of file column order.
type Observation struct {
	Columns     []Column `json:"columns"`
	ColumnCount int      `json:"column_count"`
}

// Infer derives a logical type per column from the batch's cell values.
func Infer(batch *tabular.Batch) Observation {
	cols := make([]Column, 0, len(batch.Columns))
	for _, name := range batch.Columns {
		cols = append(cols, Column{
			Name:        name,
			LogicalType: inferLogicalType(batch.Column(name)),
		})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return Observation{Columns: cols, ColumnCount: len(cols)}
}

// Fingerprint hashes the sorted (name, logical type) pairs. Reordering
// columns or rows never changes the result.
func Fingerprint(obs Observation) string {
	h := sha256.New()
	for _, col := range obs.Columns {
		h.Write([]byte(col.Name))
		h.Write([]byte{0})
		h.Write([]byte(col.LogicalType))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func inferLogicalType(values []tabular.Value) string {
	nonNull := 0
	allBool := true
	allNumeric := true
	allIntegral := true
	allTime := true

	for _, v := range values {
		if v.IsNull() {
			continue
		}
		nonNull++
		s := v.Text()

		if allBool {
			switch s {
			case "true", "True", "TRUE", "false", "False", "FALSE":
			default:
				allBool = false
			}
		}
		if allNumeric {
			if f, ok := tabular.ParseFloat(s); ok {
				if !tabular.IsIntegral(f) {
					allIntegral = false
				}
			} else {
				allNumeric = false
			}
		}
		if allTime {
			if _, ok := tabular.ParseTime(s); !ok {
				allTime = false
			}
		}
	}

	if nonNull == 0 {
		return contracts.TypeString
	}
	switch {
	case allBool:
		return contracts.TypeBoolean
	case allNumeric && allIntegral:
		return contracts.TypeInteger
	case allNumeric:
		return contracts.TypeNumber
	case allTime:
		return contracts.TypeDatetime
	default:
		return contracts.TypeString
	}
}
