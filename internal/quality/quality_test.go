package quality

import (
	"strings"
	"testing"

	"github.com/eventpulse/eventpulse/internal/contracts"
	"github.com/eventpulse/eventpulse/internal/tabular"
)

const salesContract = `
dataset: property_sales
primary_key: parcel_id
columns:
  parcel_id:
    type: string
    required: true
    unique: true
  sale_price:
    type: number
    required: true
    min: 0
  sale_date:
    type: datetime
    required: true
  beds:
    type: integer
  is_vacant:
    type: boolean
quality:
  max_null_fraction:
    sale_date: 0.1
`

func mustContract(t *testing.T, doc string) *contracts.Contract {
	t.Helper()
	c, err := contracts.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse contract: %v", err)
	}
	return c
}

func mustBatch(t *testing.T, csv string) *tabular.Batch {
	t.Helper()
	b, err := tabular.DecodeCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return b
}

func hasError(rep Report, substr string) bool {
	for _, e := range rep.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestEvaluate_CleanBatchPasses(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date,beds,is_vacant",
		"p1,100000,2026-01-02,3,true",
		"p2,250000,2026-01-03,4,no",
	}, "\n")), mustContract(t, salesContract))

	if !rep.Passed {
		t.Fatalf("expected pass, errors: %v", rep.Errors)
	}
	if rep.Metrics.RowCount != 2 || rep.Metrics.ColumnCount != 5 {
		t.Fatalf("unexpected metrics %+v", rep.Metrics)
	}
}

func TestEvaluate_MissingRequiredColumn(t *testing.T) {
	rep := Evaluate(mustBatch(t, "parcel_id,sale_price\np1,100\n"), mustContract(t, salesContract))
	if rep.Passed {
		t.Fatalf("expected failure")
	}
	if !hasError(rep, "Missing required columns") {
		t.Fatalf("expected missing-columns error, got %v", rep.Errors)
	}
}

func TestEvaluate_PrimaryKeyDuplicates(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date",
		"p1,100,2026-01-02",
		"p1,200,2026-01-03",
	}, "\n")), mustContract(t, salesContract))

	if rep.Passed {
		t.Fatalf("expected failure")
	}
	if !hasError(rep, "Primary key 'parcel_id' contains duplicates.") {
		t.Fatalf("expected pk duplicate error, got %v", rep.Errors)
	}
}

func TestEvaluate_NullPrimaryKeysCountAsDuplicates(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date",
		",100,2026-01-02",
		",200,2026-01-03",
	}, "\n")), mustContract(t, salesContract))
	if !hasError(rep, "Primary key 'parcel_id' contains duplicates.") {
		t.Fatalf("expected pk duplicate error for repeated nulls, got %v", rep.Errors)
	}
}

func TestEvaluate_MinBoundViolation(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date",
		"p1,-5,2026-01-02",
	}, "\n")), mustContract(t, salesContract))
	if rep.Passed {
		t.Fatalf("expected failure")
	}
	if !hasError(rep, "values < min") {
		t.Fatalf("expected min bound error, got %v", rep.Errors)
	}
}

func TestEvaluate_TypeConformance(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date,beds,is_vacant",
		"p1,abc,junk,1.5,maybe",
		"p2,def,junk,2.5,perhaps",
	}, "\n")), mustContract(t, salesContract))
	if rep.Passed {
		t.Fatalf("expected failure")
	}
	if !hasError(rep, "expected numeric values") {
		t.Fatalf("expected numeric error, got %v", rep.Errors)
	}
	if !hasError(rep, "expected datetime values") {
		t.Fatalf("expected datetime error, got %v", rep.Errors)
	}
	if !hasError(rep, "expected integer-like values") {
		t.Fatalf("expected integer error, got %v", rep.Errors)
	}
	if !hasError(rep, "expected boolean values") {
		t.Fatalf("expected boolean error, got %v", rep.Errors)
	}
}

func TestEvaluate_NullFractionThreshold(t *testing.T) {
	// 2 of 3 sale_date values null, threshold 0.1
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date",
		"p1,100,2026-01-02",
		"p2,200,",
		"p3,300,",
	}, "\n")), mustContract(t, salesContract))
	if rep.Passed {
		t.Fatalf("expected failure")
	}
	if !hasError(rep, "null fraction") {
		t.Fatalf("expected null fraction error, got %v", rep.Errors)
	}
	if frac := rep.Metrics.NullFractions["sale_date"]; frac < 0.6 || frac > 0.7 {
		t.Fatalf("expected null fraction ~0.67 got %v", frac)
	}
}

func TestEvaluate_UnexpectedColumnsAreWarnings(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price,sale_date,surprise",
		"p1,100,2026-01-02,x",
	}, "\n")), mustContract(t, salesContract))
	if !rep.Passed {
		t.Fatalf("unexpected columns must not fail the gate: %v", rep.Errors)
	}
	if len(rep.Warnings) == 0 || !strings.Contains(rep.Warnings[0], "surprise") {
		t.Fatalf("expected unexpected-column warning, got %v", rep.Warnings)
	}
}

func TestEvaluate_UniqueColumnDuplicates(t *testing.T) {
	doc := "dataset: d1\ncolumns:\n  code:\n    type: string\n    unique: true\n"
	rep := Evaluate(mustBatch(t, "code\nx\nx\n"), mustContract(t, doc))
	if rep.Passed {
		t.Fatalf("expected failure")
	}
	if !hasError(rep, "marked unique") {
		t.Fatalf("expected unique error, got %v", rep.Errors)
	}
}

func TestEvaluate_ChecksAccumulate(t *testing.T) {
	rep := Evaluate(mustBatch(t, strings.Join([]string{
		"parcel_id,sale_price",
		"p1,-5",
		"p1,-6",
	}, "\n")), mustContract(t, salesContract))
	if len(rep.Errors) < 3 {
		t.Fatalf("expected accumulated errors (missing column, pk dup, min bound), got %v", rep.Errors)
	}
}
