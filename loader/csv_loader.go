package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ridoystarlord/sheetmatch/mapping"
)

// DefaultSampleRows is how many data rows are kept per sheet.
const DefaultSampleRows = 20

// ReadCSV reads the header row and up to sampleRows data rows of r. The
// remaining rows are only counted.
func ReadCSV(r io.Reader, sheetName string, sampleRows int) (mapping.RawSheet, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	sheet := mapping.RawSheet{SheetName: sheetName}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return sheet, nil
	}
	if err != nil {
		return sheet, fmt.Errorf("reading header of %s: %w", sheetName, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	sheet.Headers = header

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sheet, fmt.Errorf("reading %s row %d: %w", sheetName, sheet.TotalRowCount+2, err)
		}
		if blankRecord(record) {
			continue
		}
		sheet.TotalRowCount++
		if len(sheet.SampleRows) < sampleRows {
			row := make([]any, len(record))
			for i, v := range record {
				row[i] = v
			}
			sheet.SampleRows = append(sheet.SampleRows, row)
		}
	}
	return sheet, nil
}

// LoadCSV reads one CSV file. The sheet is named after the file.
func LoadCSV(path string, sampleRows int) (mapping.RawSheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return mapping.RawSheet{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ReadCSV(f, name, sampleRows)
}

// LoadCSVFiles reads several CSV files concurrently. Sheets keep the order
// of paths.
func LoadCSVFiles(ctx context.Context, paths []string, sampleRows int) ([]mapping.RawSheet, error) {
	sheets := make([]mapping.RawSheet, len(paths))
	eg, egctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return err
			}
			sheet, err := LoadCSV(path, sampleRows)
			if err != nil {
				return err
			}
			sheets[i] = sheet
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sheets, nil
}

// LoadSheets reads .csv files and .yaml/.yml sheet fixtures in argument
// order.
func LoadSheets(ctx context.Context, paths []string, sampleRows int) ([]mapping.RawSheet, error) {
	var csvPaths []string
	for _, p := range paths {
		if isYAML(p) {
			continue
		}
		csvPaths = append(csvPaths, p)
	}
	fromCSV, err := LoadCSVFiles(ctx, csvPaths, sampleRows)
	if err != nil {
		return nil, err
	}

	var out []mapping.RawSheet
	next := 0
	for _, p := range paths {
		if !isYAML(p) {
			out = append(out, fromCSV[next])
			next++
			continue
		}
		sheets, err := LoadSheetsFromYAML(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, sheets...)
	}
	return out, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
