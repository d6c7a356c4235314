package main

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const countryColumn = "Country"

type batchResolver interface {
	ResolveBatch(addresses []string) []string
}

// annotateTable copies a CSV table with a header row and appends a Country
// column resolved from column.
func annotateTable(in io.Reader, out io.Writer, column string, resolver batchResolver) error {
	records, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return errors.Wrap(err, "CSV reading error")
	}
	if len(records) == 0 {
		return errors.New("input table has no header")
	}

	idx := -1
	for i, name := range records[0] {
		if name == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Errorf("column %q not found", column)
	}

	addresses := make([]string, len(records)-1)
	for i, record := range records[1:] {
		if idx < len(record) {
			addresses[i] = record[idx]
		}
	}
	labels := resolver.ResolveBatch(addresses)

	w := csv.NewWriter(out)
	if err := w.Write(append(records[0], countryColumn)); err != nil {
		return errors.Wrap(err, "CSV writing error")
	}
	for i, record := range records[1:] {
		if err := w.Write(append(record, labels[i])); err != nil {
			return errors.Wrap(err, "CSV writing error")
		}
	}
	w.Flush()

	return errors.Wrap(w.Error(), "CSV writing error")
}

func openInput(path string, cmd *cobra.Command) (io.Reader, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to open input")
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string, cmd *cobra.Command) (io.Writer, func(), error) {
	if path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "unable to create output")
	}
	return f, func() { f.Close() }, nil
}
