package importer

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/FabTrack/internal/broker/messages"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet is tried first when no sheet is named.
const DefaultSheet = "arup"

type column int

const (
	colNone column = iota
	colCode
	colPipeline
	colZone
	colItem
	colCompany
	colWeight
)

var headerAliases = map[string]column{
	"ASSEMBLY":      colCode,
	"ASSEMBLY_CODE": colCode,
	"ASSEMBLY_NO":   colCode,
	"CODE":          colCode,
	"PIPELINE":      colPipeline,
	"ZONE":          colZone,
	"ITEM":          colItem,
	"COMPANY":       colCompany,
	"WEIGHT":        colWeight,
	"WEIGHT_GROSS":  colWeight,
	"GROSS_WEIGHT":  colWeight,
}

// RowError describes a workbook row that was left out of the import.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

type layout struct {
	fields map[column]int
	stages map[int]stages.ID
}

func normalizeHeader(h string) string {
	h = strings.ToUpper(strings.TrimSpace(h))
	h = strings.NewReplacer("-", "_", " ", "_", "(", "", ")", "").Replace(h)
	return h
}

func parseHeader(row []string) (layout, error) {
	l := layout{fields: map[column]int{}, stages: map[int]stages.ID{}}
	for i, h := range row {
		n := normalizeHeader(h)
		if n == "" {
			continue
		}
		if c, ok := headerAliases[n]; ok {
			if _, dup := l.fields[c]; !dup {
				l.fields[c] = i
			}
			continue
		}
		if id, ok := stages.ParseID(n); ok {
			l.stages[i] = id
		}
	}
	if _, ok := l.fields[colCode]; !ok {
		return l, errors.New("header has no assembly code column")
	}
	return l, nil
}

// pipeline8 only stages decide the pipeline when the sheet has no pipeline column.
func (l layout) inferPipeline() stages.Pipeline {
	seq7, _ := stages.SequenceFor(stages.Pipeline7)
	for _, id := range l.stages {
		if !seq7.Contains(id) {
			return stages.Pipeline8
		}
	}
	return stages.Pipeline7
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

var dateLayouts = []string{
	messages.DateLayout,
	"2006/01/02",
	"2006.01.02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
}

// ParseStageCell turns a raw cell into a wire date. Empty means pending
// (ok=false, err=nil); N/A means not required for this assembly.
func ParseStageCell(raw string) (string, bool, error) {
	v := strings.TrimSpace(raw)
	switch strings.ToUpper(v) {
	case "":
		return "", false, nil
	case "N/A", "NA", "-":
		return stages.SentinelDate.Format(messages.DateLayout), true, nil
	}

	if f, err := strconv.ParseFloat(v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(f, false)
		if err != nil {
			return "", false, errors.Wrapf(err, "excel date %q", v)
		}
		return t.Format(messages.DateLayout), true, nil
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, v); err == nil {
			return t.Format(messages.DateLayout), true, nil
		}
	}
	return "", false, errors.Errorf("cannot parse date %q", v)
}

// ReadWorkbook reads assembly rows from sheet (or "arup", or the first sheet).
// Rows without a code or with bad values are returned as RowErrors.
func ReadWorkbook(r io.Reader, sheet string) ([]messages.AssemblyItem, []RowError, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open workbook")
	}
	defer func() { _ = f.Close() }()

	name, err := pickSheet(f.GetSheetList(), sheet)
	if err != nil {
		return nil, nil, err
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read rows of %s", name)
	}
	if len(rows) == 0 {
		return nil, nil, errors.Errorf("sheet %s is empty", name)
	}

	l, err := parseHeader(rows[0])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "sheet %s", name)
	}
	defaultPipeline := l.inferPipeline()

	var items []messages.AssemblyItem
	var rowErrs []RowError
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		rowNum := i + 1

		code := cell(row, l.fields[colCode])
		if code == "" {
			if !slices.ContainsFunc(row, func(s string) bool { return strings.TrimSpace(s) != "" }) {
				continue
			}
			rowErrs = append(rowErrs, RowError{Row: rowNum, Reason: "assembly code is empty"})
			continue
		}

		it := messages.AssemblyItem{AssemblyCode: code, Pipeline: string(defaultPipeline)}
		if idx, ok := l.fields[colPipeline]; ok {
			if p, ok := stages.ParsePipeline(cell(row, idx)); ok {
				it.Pipeline = string(p)
			} else if v := cell(row, idx); v != "" {
				rowErrs = append(rowErrs, RowError{Row: rowNum, Reason: fmt.Sprintf("unknown pipeline %q", v)})
				continue
			}
		}
		if idx, ok := l.fields[colZone]; ok {
			it.Zone = cell(row, idx)
		}
		if idx, ok := l.fields[colItem]; ok {
			it.Item = cell(row, idx)
		}
		if idx, ok := l.fields[colCompany]; ok {
			it.Company = cell(row, idx)
		}
		if idx, ok := l.fields[colWeight]; ok {
			if v := cell(row, idx); v != "" {
				w, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
				if err != nil {
					rowErrs = append(rowErrs, RowError{Row: rowNum, Reason: fmt.Sprintf("bad weight %q", v)})
					continue
				}
				it.WeightGross = &w
			}
		}

		var bad *RowError
		for idx, id := range l.stages {
			d, ok, err := ParseStageCell(cell(row, idx))
			if err != nil {
				bad = &RowError{Row: rowNum, Reason: fmt.Sprintf("%s: %v", id, err)}
				break
			}
			if !ok {
				continue
			}
			if it.StageDates == nil {
				it.StageDates = map[string]string{}
			}
			it.StageDates[string(id)] = d
		}
		if bad != nil {
			rowErrs = append(rowErrs, *bad)
			continue
		}

		items = append(items, it)
	}
	return items, rowErrs, nil
}

func pickSheet(list []string, want string) (string, error) {
	if len(list) == 0 {
		return "", errors.New("workbook has no sheets")
	}
	if want != "" {
		for _, s := range list {
			if strings.EqualFold(s, want) {
				return s, nil
			}
		}
		return "", errors.Errorf("sheet %q not found", want)
	}
	for _, s := range list {
		if strings.EqualFold(s, DefaultSheet) {
			return s, nil
		}
	}
	return list[0], nil
}

// WriteTemplate writes an empty import workbook for the pipeline.
func WriteTemplate(w io.Writer, p stages.Pipeline) error {
	seq, ok := stages.SequenceFor(p)
	if !ok {
		return errors.Errorf("unknown pipeline %q", p)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	idx, err := f.NewSheet(DefaultSheet)
	if err != nil {
		return errors.Wrap(err, "new sheet")
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return errors.Wrap(err, "delete default sheet")
	}

	headers := []string{"ZONE", "ITEM", "ASSEMBLY CODE", "PIPELINE", "COMPANY", "WEIGHT"}
	for _, st := range seq.Stages() {
		headers = append(headers, st.DisplayName)
	}

	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return errors.Wrap(err, "header style")
	}
	for i, h := range headers {
		name, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return errors.Wrap(err, "cell name")
		}
		if err := f.SetCellValue(DefaultSheet, name, h); err != nil {
			return errors.Wrapf(err, "set header %s", name)
		}
		if err := f.SetCellStyle(DefaultSheet, name, name, style); err != nil {
			return errors.Wrap(err, "set header style")
		}
	}
	if err := f.SetPanes(DefaultSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return errors.Wrap(err, "freeze header")
	}

	if _, err := f.WriteTo(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}
