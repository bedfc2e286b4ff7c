package partitions

import (
	"errors"
	"reflect"
	"slices"
	"testing"
)

func TestNewKeyRangeValidation(t *testing.T) {
	def := mustStatic(t, "a", "b", "c", "d")
	tests := []struct {
		name       string
		start, end string
		wantErr    bool
	}{
		{name: "ordered", start: "a", end: "c"},
		{name: "single key", start: "b", end: "b"},
		{name: "reversed", start: "c", end: "a", wantErr: true},
		{name: "unknown start", start: "z", end: "c", wantErr: true},
		{name: "unknown end", start: "a", end: "z", wantErr: true},
	}
	for _, tt := range tests {
		r, err := NewKeyRange(def, tt.start, tt.end)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("%s: expected ErrInvalidRange, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if r != (KeyRange{Start: tt.start, End: tt.end}) {
			t.Fatalf("%s: range=%s", tt.name, r)
		}
	}
	if _, err := NewKeyRange(nil, "a", "b"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange without definition, got %v", err)
	}
}

func TestKeyRangeKeysAndContains(t *testing.T) {
	def := mustStatic(t, "a", "b", "c", "d")
	r, err := NewKeyRange(def, "a", "c")
	if err != nil {
		t.Fatalf("NewKeyRange err=%v", err)
	}
	keys, err := r.KeySlice(def)
	if err != nil {
		t.Fatalf("KeySlice err=%v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b", "c"}) {
		t.Fatalf("KeySlice=%v", keys)
	}
	for key, want := range map[string]bool{"a": true, "b": true, "c": true, "d": false, "z": false} {
		if got := r.Contains(def, key); got != want {
			t.Fatalf("Contains(%q)=%v, want %v", key, got, want)
		}
	}
}

func TestKeyRangeKeysRestartable(t *testing.T) {
	def := mustHourly(t, "2021-05-05-00:00")
	r, err := NewKeyRange(def, "2021-06-06-00:00", "2021-06-06-23:00")
	if err != nil {
		t.Fatalf("NewKeyRange err=%v", err)
	}
	seq, err := r.Keys(def)
	if err != nil {
		t.Fatalf("Keys err=%v", err)
	}
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 24 {
		t.Fatalf("expected 24 hourly keys, got %d", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected restartable sequence")
	}
	if first[0] != "2021-06-06-00:00" || first[23] != "2021-06-06-23:00" {
		t.Fatalf("unexpected endpoints %q..%q", first[0], first[23])
	}
}

func TestKeyRangeTimeWindow(t *testing.T) {
	def := mustDaily(t, "2020-01-01")
	r, err := NewKeyRange(def, "2020-01-01", "2020-01-03")
	if err != nil {
		t.Fatalf("NewKeyRange err=%v", err)
	}
	w, err := r.TimeWindow(def)
	if err != nil {
		t.Fatalf("TimeWindow err=%v", err)
	}
	if !w.Equal(TimeWindow{Start: utc(2020, 1, 1, 0), End: utc(2020, 1, 4, 0)}) {
		t.Fatalf("window=%s", w)
	}

	static := mustStatic(t, "a")
	single, err := SingleKey(static, "a")
	if err != nil {
		t.Fatalf("SingleKey err=%v", err)
	}
	if !single.IsSingleKey() {
		t.Fatalf("expected single key range")
	}
	if _, err := single.TimeWindow(static); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}

func TestRangeFromIndexes(t *testing.T) {
	def := mustDaily(t, "2021-05-05")
	r, err := RangeFromIndexes(def, 1, 3)
	if err != nil {
		t.Fatalf("RangeFromIndexes err=%v", err)
	}
	if r != (KeyRange{Start: "2021-05-06", End: "2021-05-08"}) {
		t.Fatalf("range=%s", r)
	}
	if _, err := RangeFromIndexes(def, -1, 3); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
