package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fishmodel/asa/config"
)

const sampleScenario = `# minimal single-category scenario
seed 42
calendar 2000 2003
timestep step1 ageing recruit mortality
category adult 1 10 true
selectivity fleet logistic a50=4 ato95=2
process.recruitment_constant recruit adult 1 1000000
process.ageing ageing adult
process.mortality_constant mortality adult 0.2 fleet
estimate.scalar recruit.R0 0 1e9
`

func TestBuildModelFromScenarioFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "scenario.txt")
	if err := os.WriteFile(name, []byte(sampleScenario), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m, err := config.BuildModel(name)
	if err != nil {
		t.Fatalf("BuildModel: %v", err)
	}

	if _, ok := m.Selectivities.Get("fleet"); !ok {
		t.Error("selectivity fleet was not registered")
	}
	if _, ok := m.Processes.Get("recruit"); !ok {
		t.Error("process recruit was not registered")
	}
	if _, ok := m.Estimates.Get("recruit.R0"); !ok {
		t.Error("estimate recruit.R0 was not registered")
	}

	if err := m.RunFullIteration(); err != nil {
		t.Fatalf("RunFullIteration: %v", err)
	}
	c, err := m.Partition.Category("adult")
	if err != nil {
		t.Fatalf("Category: %v", err)
	}
	n, err := c.At(1)
	if err != nil {
		t.Fatalf("At(1): %v", err)
	}
	if n <= 0 {
		t.Errorf("numbers at age 1 = %v, want > 0 after recruitment", n)
	}
}

func TestBuildModelRejectsUnknownKeyword(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(name, []byte("bogus keyword\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.BuildModel(name); err == nil {
		t.Fatal("expected error for unknown keyword")
	}
}

func TestBuildModelReportsEveryEstimateBindingError(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "badestimates.txt")
	content := `calendar 2000 2001
category adult 1 5 true
process.recruitment_constant recruit adult 1 1000
estimate.scalar recruit.nosuch 0 1
estimate.scalar other.alsomissing 0 1
`
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := config.BuildModel(name)
	if err == nil {
		t.Fatal("expected an error for two unknown estimate targets")
	}
	if !strings.Contains(err.Error(), "2 configuration error") {
		t.Errorf("error = %q, want it to report both collected errors", err.Error())
	}
}

func TestBuildModelRequiresCalendarAndCategory(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "incomplete.txt")
	if err := os.WriteFile(name, []byte("seed 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := config.BuildModel(name); err == nil {
		t.Fatal("expected error for a scenario missing calendar/category declarations")
	}
}
