package importer

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheet string, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheet != "Sheet1" {
		require.NoError(t, f.SetSheetName("Sheet1", sheet))
	}
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &r))
	}
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

func TestReadWorkbook_Pipeline7(t *testing.T) {
	buf := buildWorkbook(t, "arup",
		[]any{"ZONE", "ITEM", "ASSEMBLY CODE", "Fit-up", "NDE", "VIDI", "GALV", "WEIGHT"},
		// 45296 = 2024-01-05 в формате Excel
		[]any{"Z1", "BEAM", "A-001", "2024-01-03", 45296, "", "N/A", "1,250.5"},
		[]any{"", "", "", "", "", "", "", ""},
		[]any{"Z1", "COL", "A-002", "", "", "", "", ""},
	)

	items, rowErrs, err := ReadWorkbook(buf, "")
	require.NoError(t, err)
	require.Empty(t, rowErrs)
	require.Len(t, items, 2)

	a := items[0]
	require.Equal(t, "A-001", a.AssemblyCode)
	require.Equal(t, string(stages.Pipeline7), a.Pipeline)
	require.Equal(t, "Z1", a.Zone)
	require.Equal(t, "BEAM", a.Item)
	require.NotNil(t, a.WeightGross)
	require.InDelta(t, 1250.5, *a.WeightGross, 0.001)
	require.Equal(t, map[string]string{
		"FIT_UP": "2024-01-03",
		"NDE":    "2024-01-05",
		"GALV":   "1900-01-01",
	}, a.StageDates)

	require.Equal(t, "A-002", items[1].AssemblyCode)
	require.Nil(t, items[1].StageDates)
}

func TestReadWorkbook_InfersPipeline8FromColumns(t *testing.T) {
	buf := buildWorkbook(t, "arup",
		[]any{"ASSEMBLY", "FIT-UP", "ARUP FINAL"},
		[]any{"B-1", "2024/02/01", ""},
	)
	items, _, err := ReadWorkbook(buf, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, string(stages.Pipeline8), items[0].Pipeline)
}

func TestReadWorkbook_PipelineColumnWins(t *testing.T) {
	buf := buildWorkbook(t, "arup",
		[]any{"CODE", "PIPELINE", "FIT_UP"},
		[]any{"C-1", "8", ""},
		[]any{"C-2", "", ""},
		[]any{"C-3", "9", ""},
	)
	items, rowErrs, err := ReadWorkbook(buf, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, string(stages.Pipeline8), items[0].Pipeline)
	require.Equal(t, string(stages.Pipeline7), items[1].Pipeline)
	require.Len(t, rowErrs, 1)
	require.Equal(t, 4, rowErrs[0].Row)
}

func TestReadWorkbook_RowErrors(t *testing.T) {
	buf := buildWorkbook(t, "arup",
		[]any{"ZONE", "ASSEMBLY_CODE", "PAINT"},
		[]any{"Z1", "", "2024-01-01"},
		[]any{"Z1", "D-1", "someday"},
		[]any{"Z1", "D-2", "2024.03.04"},
	)
	items, rowErrs, err := ReadWorkbook(buf, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "2024-03-04", items[0].StageDates["PAINT"])

	require.Len(t, rowErrs, 2)
	require.Equal(t, 2, rowErrs[0].Row)
	require.Contains(t, rowErrs[0].Error(), "assembly code is empty")
	require.Equal(t, 3, rowErrs[1].Row)
	require.Contains(t, rowErrs[1].Reason, "someday")
}

func TestReadWorkbook_SheetSelection(t *testing.T) {
	buf := buildWorkbook(t, "Data",
		[]any{"CODE"},
		[]any{"E-1"},
	)
	raw := buf.Bytes()

	items, _, err := ReadWorkbook(bytes.NewReader(raw), "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, _, err = ReadWorkbook(bytes.NewReader(raw), "data")
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, _, err = ReadWorkbook(bytes.NewReader(raw), "missing")
	require.Error(t, err)
}

func TestReadWorkbook_NoCodeColumn(t *testing.T) {
	buf := buildWorkbook(t, "arup",
		[]any{"ZONE", "FIT_UP"},
		[]any{"Z1", "2024-01-01"},
	)
	_, _, err := ReadWorkbook(buf, "")
	require.ErrorContains(t, err, "assembly code column")
}

func TestReadWorkbook_NotAWorkbook(t *testing.T) {
	_, _, err := ReadWorkbook(bytes.NewReader([]byte("plain text")), "")
	require.Error(t, err)
}

func TestParseStageCell(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
		err  bool
	}{
		{in: "", ok: false},
		{in: "  ", ok: false},
		{in: "N/A", want: "1900-01-01", ok: true},
		{in: "na", want: "1900-01-01", ok: true},
		{in: "2024-05-06", want: "2024-05-06", ok: true},
		{in: "05/06/2024", want: "2024-05-06", ok: true},
		{in: "45292", want: "2024-01-01", ok: true},
		{in: "45292.5", want: "2024-01-01", ok: true},
		{in: "tomorrow", err: true},
	}
	for _, tc := range cases {
		got, ok, err := ParseStageCell(tc.in)
		if tc.err {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, stages.Pipeline8))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{DefaultSheet}, f.GetSheetList())
	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ASSEMBLY CODE", rows[0][2])
	require.Equal(t, "ARUP PAINT", rows[0][len(rows[0])-1])

	// шаблон читается обратно без ошибок
	items, rowErrs, err := ReadWorkbook(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	require.Empty(t, items)
	require.Empty(t, rowErrs)

	require.Error(t, WriteTemplate(&buf, "PIPELINE_9"))
}
