package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/model"
	"github.com/triagehq/triage-cli/internal/service"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ticket table to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initReadOnlyEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tickets, err := env.Service.ListTickets(ctx, service.TicketFilter{})
		if err != nil {
			return err
		}

		if err := writeTicketsXLSX(exportOut, tickets); err != nil {
			return err
		}

		zap.L().Info("tickets exported",
			zap.Int("tickets", len(tickets)),
			zap.String("path", exportOut),
		)
		return nil
	},
}

func writeTicketsXLSX(path string, tickets []model.Ticket) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Tickets")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{
		"ticket_id", "source_id", "source_type", "title", "category",
		"priority", "description", "technical_details", "confidence",
		"status", "created_at",
	} {
		header.AddCell().SetString(col)
	}

	for _, t := range tickets {
		row := sheet.AddRow()
		row.AddCell().SetString(t.TicketID)
		row.AddCell().SetString(t.SourceID)
		row.AddCell().SetString(string(t.SourceType))
		row.AddCell().SetString(t.Title)
		row.AddCell().SetString(string(t.Category))
		row.AddCell().SetString(string(t.Priority))
		row.AddCell().SetString(t.Description)
		row.AddCell().SetString(t.TechnicalDetails)
		row.AddCell().SetFloat(t.Confidence)
		row.AddCell().SetString(string(t.Status))
		row.AddCell().SetString(t.CreatedAt)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "tickets.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
