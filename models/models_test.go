package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFlexIntDecodesNumbersAndStrings(t *testing.T) {
	tests := []struct {
		in   string
		want FlexInt
	}{
		{`{"capacity": 10}`, 10},
		{`{"capacity": "10"}`, 10},
		{`{"capacity": " 25 "}`, 25},
		{`{"capacity": null}`, 0},
	}
	for _, tt := range tests {
		var req struct {
			Capacity FlexInt `json:"capacity"`
		}
		if err := json.Unmarshal([]byte(tt.in), &req); err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if req.Capacity != tt.want {
			t.Errorf("%s: got %d, want %d", tt.in, req.Capacity, tt.want)
		}
	}
}

func TestFlexIntRejectsNonIntegers(t *testing.T) {
	for _, in := range []string{
		`{"capacity": "ten"}`,
		`{"capacity": 2.5}`,
		`{"capacity": true}`,
		`{"capacity": 9999999999999}`,
		`{"capacity": "9999999999999"}`,
	} {
		var req struct {
			Capacity FlexInt `json:"capacity"`
		}
		if err := json.Unmarshal([]byte(in), &req); err == nil {
			t.Errorf("%s: expected error", in)
		}
	}
}

func TestParseEventDate(t *testing.T) {
	got, err := ParseEventDate("2025-03-15")
	if err != nil {
		t.Fatalf("date only: %v", err)
	}
	if !got.Equal(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}

	got, err = ParseEventDate("2025-03-15T10:30:00+02:00")
	if err != nil {
		t.Fatalf("rfc3339: %v", err)
	}
	if got.Hour() != 8 || got.Location() != time.UTC {
		t.Fatalf("expected UTC normalisation, got %v", got)
	}

	if _, err := ParseEventDate("15/03/2025"); err == nil {
		t.Fatal("expected error for unsupported layout")
	}
}

func TestIsFull(t *testing.T) {
	if IsFull(0, 1) {
		t.Fatal("empty event reported full")
	}
	if !IsFull(1, 1) {
		t.Fatal("event at capacity reported open")
	}
}

func TestOptionalString(t *testing.T) {
	if OptionalString("  ") != nil {
		t.Fatal("blank should be nil")
	}
	if v := OptionalString(" CS01 "); v == nil || *v != "CS01" {
		t.Fatalf("unexpected %v", v)
	}
}
