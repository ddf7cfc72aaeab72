package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/xela07ax/spaceai-orchestrator/internal/domain"
	"github.com/xela07ax/spaceai-orchestrator/internal/infra"
	"github.com/xela07ax/spaceai-orchestrator/internal/sentinel"
)

var auditFile string

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().StringVarP(&auditFile, "file", "f", "-", "JSON array of events ('-' for stdin)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run the behavioral auditor over a batch of events and print alerts",
	Long: "Reads a JSON array of {agentId, type, timestamp} events and prints the alerts\n" +
		"as JSON. Thresholds come from the sentinel section of the config.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := infra.LoadConfig(cfgPath)
		if err != nil {
			return err
		}

		in := cmd.InOrStdin()
		if auditFile != "-" {
			f, err := os.Open(auditFile)
			if err != nil {
				return fmt.Errorf("open events: %w", err)
			}
			defer f.Close()
			in = f
		}
		return runAudit(in, cmd.OutOrStdout(), cfg.Sentinel.Thresholds)
	},
}

func runAudit(in io.Reader, out io.Writer, th sentinel.Thresholds) error {
	var events []domain.Event
	if err := json.NewDecoder(in).Decode(&events); err != nil {
		return fmt.Errorf("decode events: %w", err)
	}
	for i, e := range events {
		if !e.Type.Valid() {
			return fmt.Errorf("event %d: unknown type %q", i, e.Type)
		}
	}

	alerts := sentinel.NewAuditor(th).Audit(events)
	if alerts == nil {
		alerts = []sentinel.Alert{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(alerts)
}
