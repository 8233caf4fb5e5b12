// Package config implements the persisted-state file formats spec.md
// §6 describes: the per-estimate free-parameter table and the
// per-MCMC-run chain file. Both follow the header-then-rows TSV idiom
// this module's configuration readers have always used: a
// '#'-commented provenance header and "on file %q: on row %d: %v"
// contextual error wrapping. The chain file uses encoding/csv with
// Comma='\t'; the free-parameter file splits on arbitrary whitespace
// instead (see ReadFreeParams) since addressable names can themselves
// contain delimiter-like characters.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fishmodel/asa/estimate"
)

// FreeParams is a table of natural-scale estimate values: one row per
// saved parameter set, one column per addressable name (spec.md §6:
// "one header line with addressable names, subsequent lines with
// whitespace-separated values").
type FreeParams struct {
	Names []string
	Rows  [][]float64
}

// ReadFreeParams reads a free-parameter file: a header line naming
// every addressable, followed by one whitespace-separated row of
// natural-scale values per line. Fields are split on arbitrary
// whitespace rather than a fixed delimiter, since addressable paths
// can themselves contain characters (brackets, dots) that make a
// single-byte-delimiter reader awkward.
func ReadFreeParams(name string) (*FreeParams, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	fp := &FreeParams{}
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if fp.Names == nil {
			fp.Names = fields
			continue
		}
		if len(fields) != len(fp.Names) {
			return nil, fmt.Errorf("on file %q: on row %d: expecting %d values, got %d", name, ln, len(fp.Names), len(fields))
		}
		row := make([]float64, len(fields))
		for i, v := range fields {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("on file %q: on row %d, field %d: %v", name, ln, i+1, err)
			}
			row[i] = x
		}
		fp.Rows = append(fp.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	if fp.Names == nil {
		return nil, fmt.Errorf("on file %q: missing header", name)
	}
	return fp, nil
}

// Write writes the free-parameter table to name: a provenance
// comment, a header line of addressable names, then one row per
// recorded parameter set.
func (fp *FreeParams) Write(name string) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer func() {
		e := f.Close()
		if e != nil && err == nil {
			err = e
		}
	}()

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "# free parameter values\n")
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintln(bw, strings.Join(fp.Names, "\t"))
	for _, row := range fp.Rows {
		fields := make([]string, len(row))
		for i, v := range row {
			fields[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintln(bw, strings.Join(fields, "\t"))
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("on file %q: %v", name, err)
	}
	return nil
}

// ApplyRow writes row's natural-scale values onto estimates, matched
// by label to fp.Names (spec.md §4.5 SetNatural bound-checks and
// propagates to same-links).
func (fp *FreeParams) ApplyRow(row int, estimates *estimate.Registry) error {
	if row < 0 || row >= len(fp.Rows) {
		return fmt.Errorf("free parameters: row %d out of range [0,%d)", row, len(fp.Rows))
	}
	values := fp.Rows[row]
	for i, name := range fp.Names {
		e, ok := estimates.Get(name)
		if !ok {
			return fmt.Errorf("free parameters: unknown estimate %q", name)
		}
		if err := e.SetNatural(values[i]); err != nil {
			return err
		}
	}
	return nil
}

// CaptureRow reads the current natural-scale values of the registry's
// enabled estimates and appends them as a new row, setting fp.Names
// from the registry's order the first time it is called on an empty
// table.
func (fp *FreeParams) CaptureRow(estimates *estimate.Registry) error {
	if fp.Names == nil {
		for _, e := range estimates.Enabled() {
			fp.Names = append(fp.Names, e.Label)
		}
	}
	row := make([]float64, len(fp.Names))
	for i, name := range fp.Names {
		e, ok := estimates.Get(name)
		if !ok {
			return fmt.Errorf("free parameters: unknown estimate %q", name)
		}
		row[i] = e.Natural()
	}
	fp.Rows = append(fp.Rows, row)
	return nil
}
