package config

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fishmodel/asa/mcmc"
)

var chainHeader = []string{
	"iteration",
	"score",
	"likelihood",
	"prior",
	"penalty",
	"additional_priors",
	"acceptance_rate",
	"acceptance_rate_since_adapt",
	"step_size",
}

// ReadChain reads an MCMC chain file: a fixed header of ChainLink
// scalar fields followed by one "value_%d" column per estimated
// parameter, one row per kept iteration (spec.md §6: "one row per kept
// iteration containing the ChainLink fields"), following
// project.Read's header-validated TSV idiom.
func ReadChain(name string) ([]mcmc.ChainLink, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tsv := csv.NewReader(f)
	tsv.Comma = '\t'
	tsv.Comment = '#'

	head, err := tsv.Read()
	if err != nil {
		return nil, fmt.Errorf("on file %q: header: %v", name, err)
	}
	fields := make(map[string]int, len(head))
	for i, h := range head {
		fields[strings.ToLower(h)] = i
	}
	for _, h := range chainHeader {
		if _, ok := fields[h]; !ok {
			return nil, fmt.Errorf("on file %q: expecting field %q", name, h)
		}
	}
	numValues := len(head) - len(chainHeader)

	var links []mcmc.ChainLink
	for {
		row, err := tsv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		ln, _ := tsv.FieldPos(0)
		if err != nil {
			return nil, fmt.Errorf("on file %q: on row %d: %v", name, ln, err)
		}

		link, err := parseChainRow(name, ln, row, fields, numValues)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, nil
}

func parseChainRow(name string, ln int, row []string, fields map[string]int, numValues int) (mcmc.ChainLink, error) {
	var link mcmc.ChainLink
	get := func(field string) (float64, error) {
		v, err := strconv.ParseFloat(row[fields[field]], 64)
		if err != nil {
			return 0, fmt.Errorf("on file %q: on row %d, field %q: %v", name, ln, field, err)
		}
		return v, nil
	}

	iter, err := get("iteration")
	if err != nil {
		return link, err
	}
	link.Iteration = int(iter)

	if link.Score, err = get("score"); err != nil {
		return link, err
	}
	if link.Likelihood, err = get("likelihood"); err != nil {
		return link, err
	}
	if link.Prior, err = get("prior"); err != nil {
		return link, err
	}
	if link.Penalty, err = get("penalty"); err != nil {
		return link, err
	}
	if link.AdditionalPriors, err = get("additional_priors"); err != nil {
		return link, err
	}
	if link.AcceptanceRate, err = get("acceptance_rate"); err != nil {
		return link, err
	}
	if link.AcceptanceRateSinceAdapt, err = get("acceptance_rate_since_adapt"); err != nil {
		return link, err
	}
	if link.StepSize, err = get("step_size"); err != nil {
		return link, err
	}

	link.Values = make([]float64, numValues)
	for i := 0; i < numValues; i++ {
		col := fmt.Sprintf("value_%d", i+1)
		idx, ok := fields[col]
		if !ok {
			return link, fmt.Errorf("on file %q: on row %d: missing column %q", name, ln, col)
		}
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return link, fmt.Errorf("on file %q: on row %d, field %q: %v", name, ln, col, err)
		}
		link.Values[i] = v
	}
	return link, nil
}

// WriteChain writes links to name as a chain file, with one
// "value_%d" column per entry in the first link's Values (every link
// in a single MCMC run shares the same estimate count).
func WriteChain(name string, links []mcmc.ChainLink) (err error) {
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
	fmt.Fprintf(bw, "# mcmc chain\n")
	fmt.Fprintf(bw, "# data save on: %s\n", time.Now().Format(time.RFC3339))
	tsv := csv.NewWriter(bw)
	tsv.Comma = '\t'
	tsv.UseCRLF = true

	numValues := 0
	if len(links) > 0 {
		numValues = len(links[0].Values)
	}
	header := append([]string(nil), chainHeader...)
	for i := 0; i < numValues; i++ {
		header = append(header, fmt.Sprintf("value_%d", i+1))
	}
	if err := tsv.Write(header); err != nil {
		return fmt.Errorf("on file %q: while writing header: %v", name, err)
	}

	for _, link := range links {
		row := []string{
			strconv.Itoa(link.Iteration),
			strconv.FormatFloat(link.Score, 'g', -1, 64),
			strconv.FormatFloat(link.Likelihood, 'g', -1, 64),
			strconv.FormatFloat(link.Prior, 'g', -1, 64),
			strconv.FormatFloat(link.Penalty, 'g', -1, 64),
			strconv.FormatFloat(link.AdditionalPriors, 'g', -1, 64),
			strconv.FormatFloat(link.AcceptanceRate, 'g', -1, 64),
			strconv.FormatFloat(link.AcceptanceRateSinceAdapt, 'g', -1, 64),
			strconv.FormatFloat(link.StepSize, 'g', -1, 64),
		}
		for _, v := range link.Values {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := tsv.Write(row); err != nil {
			return fmt.Errorf("on file %q: %v", name, err)
		}
	}

	tsv.Flush()
	if err := tsv.Error(); err != nil {
		return fmt.Errorf("on file %q: while writing data: %v", name, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("on file %q: while writing data: %v", name, err)
	}
	return nil
}
