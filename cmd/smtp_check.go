package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var smtpCheckTo string

var smtpCheckCmd = &cobra.Command{
	Use:   "smtp-check",
	Short: "Send a test email through the configured SMTP settings",
	Long: `Looks up the first enabled SMTP settings row with the service role
and sends a short test message, printing the resulting Message-ID.`,
	RunE: runSMTPCheck,
}

func init() {
	smtpCheckCmd.Flags().StringVar(&smtpCheckTo, "to", "", "recipient address")
	_ = smtpCheckCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(smtpCheckCmd)
}

func runSMTPCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	a := &app{}
	defer a.close()
	relay, err := newRelay(ctx, cfg, log, a)
	if err != nil {
		return err
	}

	id, err := relay.Send(ctx, "", smtpCheckTo, "Outfred SMTP test",
		"<p>This is a test message from <strong>outfred-gateway</strong>.</p>")
	if err != nil {
		return fmt.Errorf("smtp check failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", id)
	return nil
}
