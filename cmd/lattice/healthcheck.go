package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newHealthcheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running node's /healthz endpoint",
		Long: `Probe a running node's /healthz endpoint and exit non-zero unless it
answers 200. The URL defaults to the configured gateway address on localhost.`,
		Args: cobra.NoArgs,
		RunE: runHealthcheck,
	}
	cmd.Flags().String("url", "", "base URL of the gateway")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	return cmd
}

func runHealthcheck(cmd *cobra.Command, _ []string) error {
	base, _ := cmd.Flags().GetString("url")
	if base == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		base = gatewayURL(cfg.Gateway.Addr)
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(base, "/")+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck: %s", resp.Status)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

// gatewayURL turns a listen address such as ":8080" into a local URL.
func gatewayURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
