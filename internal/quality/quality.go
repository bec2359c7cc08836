package quality

import (
	"fmt"

	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/tabular"
)

type Metrics struct {
	RowCount      int                `json:"row_count"`
	ColumnCount   int                `json:"column_count"`
	NullFractions map[string]float64 `json:"null_fractions"`
}

type Report struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Metrics  Metrics  `json:"metrics"`
}

// Parse-success thresholds for best-effort type conformance. A column passes
// an integer/number/boolean check when more than 80% of its non-null values
// conform; a datetime column fails when more than 20% cannot be parsed.
const (
	conformFraction  = 0.8
	datetimeBadLimit = 0.2
)

// Evaluate runs every contract check against the batch. Checks accumulate:
// nothing short-circuits, so a failing report lists everything wrong at once.
func Evaluate(batch *tabular.Batch, contract *contracts.Contract) Report {
	var errs, warnings []string

	// 1. required columns
	var missing []string
	for _, name := range contract.Columns.Order {
		spec := contract.Columns.Specs[name]
		if spec.Required && !batch.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Sprintf("Missing required columns: %v", missing))
	}

	// 2. undeclared columns are drift's concern, not a hard failure
	var unexpected []string
	for _, name := range batch.Columns {
		if !contract.Columns.Has(name) {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		warnings = append(warnings, fmt.Sprintf("Unexpected columns present: %v", unexpected))
	}

	// 3 + 4. type conformance and declared bounds
	for _, name := range contract.Columns.Order {
		if !batch.HasColumn(name) {
			continue
		}
		spec := contract.Columns.Specs[name]
		values := batch.Column(name)

		nonNull := make([]string, 0, len(values))
		for _, v := range values {
			if !v.IsNull() {
				nonNull = append(nonNull, v.Text())
			}
		}
		if len(nonNull) > 0 {
			switch spec.Type {
			case contracts.TypeInteger:
				if !looksLikeInt(nonNull) {
					errs = append(errs, fmt.Sprintf("Column '%s' expected integer-like values.", name))
				}
			case contracts.TypeNumber:
				if !looksLikeNumber(nonNull) {
					errs = append(errs, fmt.Sprintf("Column '%s' expected numeric values.", name))
				}
			case contracts.TypeDatetime:
				if badTimeFraction(nonNull) > datetimeBadLimit {
					errs = append(errs, fmt.Sprintf("Column '%s' expected datetime values.", name))
				}
			case contracts.TypeBoolean:
				if !looksLikeBool(nonNull) {
					errs = append(errs, fmt.Sprintf("Column '%s' expected boolean values.", name))
				}
			}
		}

		if spec.Type == contracts.TypeInteger || spec.Type == contracts.TypeNumber {
			if spec.Min != nil && anyBelow(nonNull, *spec.Min) {
				errs = append(errs, fmt.Sprintf("Column '%s' has values < min (%g).", name, *spec.Min))
			}
			if spec.Max != nil && anyAbove(nonNull, *spec.Max) {
				errs = append(errs, fmt.Sprintf("Column '%s' has values > max (%g).", name, *spec.Max))
			}
		}
	}

	// 5. unique columns and the primary key, independently
	for _, name := range contract.Columns.Order {
		spec := contract.Columns.Specs[name]
		if spec.Unique && batch.HasColumn(name) && hasDuplicates(batch.Column(name)) {
			errs = append(errs, fmt.Sprintf("Column '%s' has duplicate values but is marked unique.", name))
		}
	}
	if pk := contract.PrimaryKey; pk != "" && batch.HasColumn(pk) {
		if hasDuplicates(batch.Column(pk)) {
			errs = append(errs, fmt.Sprintf("Primary key '%s' contains duplicates.", pk))
		}
	}

	// 6. null-fraction thresholds
	nullFracs := map[string]float64{}
	for _, name := range contract.Columns.Order {
		threshold, ok := contract.Quality.MaxNullFraction[name]
		if !ok || !batch.HasColumn(name) {
			continue
		}
		frac := nullFraction(batch.Column(name))
		nullFracs[name] = frac
		if frac > threshold {
			errs = append(errs,
				fmt.Sprintf("Column '%s' null fraction %.2f%% exceeds threshold %.2f%%.", name, frac*100, threshold*100))
		}
	}

	return Report{
		Passed:   len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
		Metrics: Metrics{
			RowCount:      batch.RowCount(),
			ColumnCount:   batch.ColumnCount(),
			NullFractions: nullFracs,
		},
	}
}

func looksLikeNumber(values []string) bool {
	parsed := 0
	for _, s := range values {
		if _, ok := tabular.ParseFloat(s); ok {
			parsed++
		}
	}
	return float64(parsed)/float64(len(values)) > conformFraction
}

func looksLikeInt(values []string) bool {
	parsed := 0
	for _, s := range values {
		f, ok := tabular.ParseFloat(s)
		if !ok {
			continue
		}
		if !tabular.IsIntegral(f) {
			return false
		}
		parsed++
	}
	return float64(parsed)/float64(len(values)) > conformFraction
}

func looksLikeBool(values []string) bool {
	matched := 0
	for _, s := range values {
		if _, ok := tabular.ParseBool(s); ok {
			matched++
		}
	}
	return float64(matched)/float64(len(values)) > conformFraction
}

func badTimeFraction(values []string) float64 {
	bad := 0
	for _, s := range values {
		if _, ok := tabular.ParseTime(s); !ok {
			bad++
		}
	}
	return float64(bad) / float64(len(values))
}

func anyBelow(values []string, min float64) bool {
	for _, s := range values {
		if f, ok := tabular.ParseFloat(s); ok && f < min {
			return true
		}
	}
	return false
}

func anyAbove(values []string, max float64) bool {
	for _, s := range values {
		if f, ok := tabular.ParseFloat(s); ok && f > max {
			return true
		}
	}
	return false
}

// hasDuplicates treats nulls as equal to each other, so two missing primary
// key values also count as a duplicate.
func hasDuplicates(values []tabular.Value) bool {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := v.Text()
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
	}
	return false
}

func nullFraction(values []tabular.Value) float64 {
	if len(values) == 0 {
		return 0
	}
	nulls := 0
	for _, v := range values {
		if v.IsNull() {
			nulls++
		}
	}
	return float64(nulls) / float64(len(values))
}
