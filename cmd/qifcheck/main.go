// Command qifcheck parses .qif files locally and prints what an import would
// see, without touching any storage.
//
//	qifcheck [-rules seeds.yaml] [-summary] file.qif...
//
// Exit status is 1 when any file has a parse error and 2 on usage errors.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"finances/internal/cli"
	"finances/internal/core"
	applog "finances/internal/log"
	"finances/internal/qif"
	"finances/internal/rules"
)

type fileReport struct {
	File        string             `json:"file"`
	Entries     []core.LedgerEntry `json:"transactions,omitempty"`
	EntryCount  int                `json:"transactionCount"`
	Errors      []string           `json:"errors"`
	TotalDebit  core.Money         `json:"totalDebit"`
	TotalCredit core.Money         `json:"totalCredit"`
}

func main() {
	seedFile := flag.String("rules", "", "YAML rule seed file applied to parsed entries")
	summary := flag.Bool("summary", false, "print counts and totals only")
	flag.Parse()

	logger := cli.SetupLogger("qifcheck")
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: qifcheck [-rules seeds.yaml] [-summary] file.qif...")
		os.Exit(2)
	}

	var ruleList []core.CategoryRule
	if *seedFile != "" {
		seeds, err := rules.LoadSeeds(*seedFile)
		if err != nil {
			cli.Fatal(logger, "Failed to load rule seeds", err)
		}
		for _, s := range seeds {
			ruleList = append(ruleList, s.Rule(""))
		}
	}

	failed := false
	reports := make([]fileReport, 0, flag.NArg())
	for _, path := range flag.Args() {
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read file", applog.FieldError, err, "path", path)
			failed = true
			continue
		}
		rep := check(path, content, ruleList)
		if len(rep.Errors) > 0 {
			failed = true
		}
		if *summary {
			rep.Entries = nil
		}
		reports = append(reports, rep)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		cli.Fatal(logger, "Failed to write report", err)
	}
	if failed {
		os.Exit(1)
	}
}

func check(path string, content []byte, ruleList []core.CategoryRule) fileReport {
	parsed := qif.Parse(content)
	rep := fileReport{File: path, Errors: parsed.Errors, EntryCount: len(parsed.Entries)}
	for _, e := range parsed.Entries {
		if cat, sub, ok := rules.Match(ruleList, e.Description); ok {
			e.Category, e.Subcategory = cat, sub
		}
		rep.TotalDebit = rep.TotalDebit.Add(e.Debit)
		rep.TotalCredit = rep.TotalCredit.Add(e.Credit)
		rep.Entries = append(rep.Entries, e)
	}
	return rep
}
