package contracts

import (
	"errors"
	"testing"
)

const sampleContract = `
dataset: property_sales
description: County property sales
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
    type: timestamp
    required: true
  beds:
    type: int
quality:
  max_null_fraction:
    sale_date: 0.1
drift_policy: fail
`

func TestParse_NormalizesAliasesAndKeepsOrder(t *testing.T) {
	c, err := Parse([]byte(sampleContract))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Dataset != "property_sales" {
		t.Fatalf("unexpected dataset %q", c.Dataset)
	}
	want := []string{"parcel_id", "sale_price", "sale_date", "beds"}
	if len(c.Columns.Order) != len(want) {
		t.Fatalf("expected %d columns got %d", len(want), len(c.Columns.Order))
	}
	for i, name := range want {
		if c.Columns.Order[i] != name {
			t.Fatalf("column %d: expected %q got %q", i, name, c.Columns.Order[i])
		}
	}
	if got := c.Columns.Specs["sale_date"].Type; got != TypeDatetime {
		t.Fatalf("expected timestamp alias to normalize to datetime, got %q", got)
	}
	if got := c.Columns.Specs["beds"].Type; got != TypeInteger {
		t.Fatalf("expected int alias to normalize to integer, got %q", got)
	}
	if c.DriftPolicy != DriftFail {
		t.Fatalf("expected drift_policy fail got %q", c.DriftPolicy)
	}
	if min := c.Columns.Specs["sale_price"].Min; min == nil || *min != 0 {
		t.Fatalf("expected min 0, got %v", min)
	}
}

func TestParse_MissingColumnTypeDefaultsToString(t *testing.T) {
	c, err := Parse([]byte("dataset: d1\ncolumns:\n  notes: {}\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := c.Columns.Specs["notes"].Type; got != TypeString {
		t.Fatalf("expected string default got %q", got)
	}
}

func TestParse_RejectsUnknownType(t *testing.T) {
	_, err := Parse([]byte("dataset: d1\ncolumns:\n  a:\n    type: decimal\n"))
	if !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected ErrInvalidContract got %v", err)
	}
}

func TestParse_RejectsPrimaryKeyNotInColumns(t *testing.T) {
	_, err := Parse([]byte("dataset: d1\nprimary_key: missing\ncolumns:\n  a:\n    type: string\n"))
	if !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected ErrInvalidContract got %v", err)
	}
}

func TestParse_RejectsBadColumnName(t *testing.T) {
	_, err := Parse([]byte("dataset: d1\ncolumns:\n  Bad-Name:\n    type: string\n"))
	if !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected ErrInvalidContract got %v", err)
	}
}

func TestParse_RejectsNullFractionOutOfRange(t *testing.T) {
	_, err := Parse([]byte("dataset: d1\ncolumns:\n  a:\n    type: string\nquality:\n  max_null_fraction:\n    a: 1.5\n"))
	if !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected ErrInvalidContract got %v", err)
	}
}

func TestParse_RejectsBadDriftPolicy(t *testing.T) {
	_, err := Parse([]byte("dataset: d1\ncolumns:\n  a:\n    type: string\ndrift_policy: panic\n"))
	if !errors.Is(err, ErrInvalidContract) {
		t.Fatalf("expected ErrInvalidContract got %v", err)
	}
}

func TestParse_RejectsDuplicateColumn(t *testing.T) {
	_, err := Parse([]byte("dataset: d1\ncolumns:\n  a:\n    type: string\n  a:\n    type: number\n"))
	if err == nil {
		t.Fatalf("expected error for duplicate column")
	}
}

func TestNormalizeDataset(t *testing.T) {
	got, err := NormalizeDataset("  Property_Sales ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "property_sales" {
		t.Fatalf("expected property_sales got %q", got)
	}
	for _, bad := range []string{"", "9lives", "has-dash", "UPPER CASE"} {
		if _, err := NormalizeDataset(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
