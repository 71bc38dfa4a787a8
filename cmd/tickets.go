package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/triagehq/triage-cli/internal/service"
)

var (
	ticketsCategory string
	ticketsPriority string
	ticketsStatus   string
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Inspect and maintain the ticket store",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets, optionally filtered",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initReadOnlyEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tickets, err := env.Service.ListTickets(ctx, service.TicketFilter{
			Category: ticketsCategory,
			Priority: ticketsPriority,
			Status:   ticketsStatus,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tickets)
	},
}

var ticketsGetCmd = &cobra.Command{
	Use:   "get <ticket-id>",
	Short: "Show one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initReadOnlyEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ticket, err := env.Service.GetTicket(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ticket)
	},
}

var ticketsDedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Collapse duplicate ticket rows sharing a ticket id",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initReadOnlyEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		removed, err := env.Service.Deduplicate(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("deduplication complete", zap.Int("removed", removed))
		return nil
	},
}

func init() {
	ticketsListCmd.Flags().StringVar(&ticketsCategory, "category", "", "filter by category")
	ticketsListCmd.Flags().StringVar(&ticketsPriority, "priority", "", "filter by priority")
	ticketsListCmd.Flags().StringVar(&ticketsStatus, "status", "", "filter by status")

	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsGetCmd)
	ticketsCmd.AddCommand(ticketsDedupeCmd)
	rootCmd.AddCommand(ticketsCmd)
}
