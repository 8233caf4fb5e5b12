package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fishmodel/asa/config"
	"github.com/fishmodel/asa/estimate"
)

func TestFreeParamsWriteReadRoundTrip(t *testing.T) {
	var r0, steepness float64
	ests := estimate.NewRegistry()
	_ = ests.Add(estimate.New("R0", estimate.NewScalar("R0", &r0), 0, 1e9))
	_ = ests.Add(estimate.New("steepness", estimate.NewScalar("steepness", &steepness), 0.2, 1))

	r0 = 5_000_000
	steepness = 0.85

	fp := &config.FreeParams{}
	if err := fp.CaptureRow(ests); err != nil {
		t.Fatalf("CaptureRow: %v", err)
	}

	dir := t.TempDir()
	name := filepath.Join(dir, "free.par")
	if err := fp.Write(name); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := config.ReadFreeParams(name)
	if err != nil {
		t.Fatalf("ReadFreeParams: %v", err)
	}
	if len(got.Rows) != 1 || len(got.Rows[0]) != 2 {
		t.Fatalf("got %d rows of %d values, want 1 row of 2", len(got.Rows), len(got.Rows[0]))
	}
	if got.Rows[0][0] != 5_000_000 || got.Rows[0][1] != 0.85 {
		t.Errorf("round trip values = %v, want [5000000 0.85]", got.Rows[0])
	}

	r0, steepness = 0, 0
	if err := got.ApplyRow(0, ests); err != nil {
		t.Fatalf("ApplyRow: %v", err)
	}
	if r0 != 5_000_000 || steepness != 0.85 {
		t.Errorf("ApplyRow wrote r0=%v steepness=%v, want 5000000 0.85", r0, steepness)
	}
}

func TestReadFreeParamsRowLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "bad.par")
	if err := os.WriteFile(name, []byte("a\tb\n1\t2\t3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.ReadFreeParams(name); err == nil {
		t.Fatal("expected error for row with wrong field count")
	}
}

func TestApplyRowRejectsOutOfBounds(t *testing.T) {
	fp := &config.FreeParams{Names: []string{"R0"}, Rows: [][]float64{{1}}}
	ests := estimate.NewRegistry()
	if err := fp.ApplyRow(5, ests); err == nil {
		t.Fatal("expected error for out-of-range row")
	}
}
