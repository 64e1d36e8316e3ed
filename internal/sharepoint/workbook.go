package sharepoint

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/tonimelisma/pbi-refresh-monitor/pkg/powerbi"
)

// SheetName is the only worksheet of the published workbook.
const SheetName = "Sheet1"

// Headers are the column titles of the published workbook.
var Headers = []string{
	"Data e Hora",
	"Workspace",
	"Relatório",
	"Tipo",
	"Última Atualização",
	"Atualizado Hoje",
	"Sucesso na Atualização",
	"Próxima Atualização",
	"Agendamento Cancelado",
}

// Rows flattens snap into one row per record, in the column order of
// Headers.
func Rows(snap powerbi.RunSnapshot) [][]any {
	records := snap.Records()
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rec := r.Record
		rows = append(rows, []any{
			r.Timestamp,
			rec.WorkspaceName,
			rec.ItemName,
			rec.ItemType,
			rec.LastRefreshText,
			rec.RefreshedToday,
			!rec.UpdateFailed,
			rec.NextRefreshText,
			rec.ScheduleCancelled,
		})
	}
	return rows
}

// BuildWorkbook renders snap as an .xlsx file with a bold header row.
func BuildWorkbook(snap powerbi.RunSnapshot) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return nil, fmt.Errorf("creating sheet writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: bold}); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, row := range Rows(snap) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("flushing sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}
