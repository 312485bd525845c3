package util

import (
	"math"
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimePandas(t *testing.T) {
	got, ok := ParseTime("2013-12-02 21:15:00")
	if !ok {
		t.Fatalf("expected ok")
	}
	want := time.Date(2013, 12, 2, 21, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeGarbage(t *testing.T) {
	if _, ok := ParseTime(""); ok {
		t.Fatalf("expected failure for empty input")
	}
	if _, ok := ParseTime("yesterday"); ok {
		t.Fatalf("expected failure for garbage")
	}
}

func TestParseFlagCell(t *testing.T) {
	cases := []struct {
		in           string
		value, valid bool
	}{
		{"1", true, true},
		{"0", false, true},
		{"1.0", true, true},
		{"True", true, true},
		{"false", false, true},
		{"", false, false},
		{"nan", false, false},
	}
	for _, c := range cases {
		v, ok, err := ParseFlagCell(c.in)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", c.in, err)
		}
		if v != c.value || ok != c.valid {
			t.Errorf("%q: got (%v,%v) want (%v,%v)", c.in, v, ok, c.value, c.valid)
		}
	}
	if _, _, err := ParseFlagCell("maybe"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseFloatCellNull(t *testing.T) {
	v, err := ParseFloatCell("")
	if err != nil || !math.IsNaN(v) {
		t.Fatalf("expected NaN, got %v %v", v, err)
	}
	v, err = ParseFloatCell(" 71.5 ")
	if err != nil || v != 71.5 {
		t.Fatalf("expected 71.5, got %v %v", v, err)
	}
}
