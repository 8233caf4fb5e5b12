package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fishmodel/asa/config"
	"github.com/fishmodel/asa/mcmc"
)

func TestWriteReadChainRoundTrip(t *testing.T) {
	links := []mcmc.ChainLink{
		{
			Iteration:               1,
			Score:                   12.5,
			Likelihood:              10,
			Prior:                   2,
			Penalty:                 0.5,
			AdditionalPriors:        0,
			AcceptanceRate:          0.3,
			AcceptanceRateSinceAdapt: 0.28,
			StepSize:                0.1,
			Values:                  []float64{1.1, 2.2, 3.3},
		},
		{
			Iteration:               2,
			Score:                   11.9,
			Likelihood:              9.5,
			Prior:                   2,
			Penalty:                 0.4,
			AdditionalPriors:        0,
			AcceptanceRate:          0.32,
			AcceptanceRateSinceAdapt: 0.3,
			StepSize:                0.11,
			Values:                  []float64{1.0, 2.3, 3.1},
		},
	}

	dir := t.TempDir()
	name := filepath.Join(dir, "chain.tsv")
	if err := config.WriteChain(name, links); err != nil {
		t.Fatalf("WriteChain: %v", err)
	}

	got, err := config.ReadChain(name)
	if err != nil {
		t.Fatalf("ReadChain: %v", err)
	}
	if len(got) != len(links) {
		t.Fatalf("got %d links, want %d", len(got), len(links))
	}
	for i, link := range got {
		want := links[i]
		if link.Iteration != want.Iteration || link.Score != want.Score || link.StepSize != want.StepSize {
			t.Errorf("link %d = %+v, want %+v", i, link, want)
		}
		if len(link.Values) != len(want.Values) {
			t.Fatalf("link %d Values = %v, want %v", i, link.Values, want.Values)
		}
		for j := range link.Values {
			if link.Values[j] != want.Values[j] {
				t.Errorf("link %d value %d = %v, want %v", i, j, link.Values[j], want.Values[j])
			}
		}
	}
}

func TestReadChainMissingHeaderField(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "bad.tsv")
	content := "iteration\tscore\n1\t2\n"
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.ReadChain(name); err == nil {
		t.Fatal("expected error for missing required header field")
	}
}
