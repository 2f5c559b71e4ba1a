package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and components",
	Long: `Checks the configuration and verifies that the parser, the fact output,
the result cache and the ignore file are usable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		result, err := healthcheck.Check(cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(result)

		if result.HasError() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

func displayDoctorResult(result *healthcheck.HealthCheckResult) {
	if result.EffectivePath == "" {
		fmt.Print("Using config: defaults (run 'gcm init' to create a configuration file)\n\n")
	} else {
		fmt.Printf("Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	}
	printComponents(result)
}

func printComponents(result *healthcheck.HealthCheckResult) {
	for _, c := range result.Components {
		fmt.Printf("%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Printf("  %s\n", c.Detail)
		}
		fmt.Printf("  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Error != "" && c.Status == healthcheck.StatusError {
			fmt.Printf("  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusSkipped:
		return "-"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
