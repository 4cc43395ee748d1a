package stripesource

import (
	"encoding/csv"
	"fmt"
	"io"

	"deposit-reconciler/internal/models"
	"deposit-reconciler/internal/parsers"
)

var csvHeader = []string{
	parsers.ColumnDescription,
	parsers.ColumnCreated,
	parsers.ColumnAmount,
	parsers.ColumnFees,
	parsers.ColumnNet,
}

// WriteCSV writes the export in the processor CSV layout the parser reads
func WriteCSV(w io.Writer, export *models.ProcessorExport) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range export.Records {
		row := []string{
			r.Description,
			r.Created.UTC().Format("2006-01-02 15:04:05"),
			models.FormatMoney(r.Amount),
			models.FormatMoney(r.Fee),
			models.FormatMoney(r.Net),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
