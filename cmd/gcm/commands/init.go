package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-commit-miner/internal/config"
	"github.com/l3aro/go-commit-miner/internal/healthcheck"
	"github.com/l3aro/go-commit-miner/pkg/facts"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize gcm configuration interactively",
	Long: `Guides you through setting up gcm configuration step by step.
Creates a config file with analysis, output and cache settings.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Analysis ===
	workers := strconv.Itoa(cfg.Workers)
	ceiling := strconv.Itoa(cfg.EdgeVisitCeiling)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workers").
				Description("Number of files analyzed concurrently").
				Placeholder(workers).
				Validate(positiveInt).
				Value(&workers),
			huh.NewInput().
				Title("Edge-visit ceiling").
				Description("Edge visits per function before the analysis stops with partial facts").
				Placeholder(ceiling).
				Validate(positiveInt).
				Value(&ceiling),
			huh.NewConfirm().
				Title("Path-sensitive analysis?").
				Description("Analyze every path separately. More precise, much slower on branchy code.").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.PathSensitive),
		),
	)
	err := form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Workers, _ = strconv.Atoi(workers)
	cfg.EdgeVisitCeiling, _ = strconv.Atoi(ceiling)

	// === SECTION 2: Output ===
	format := string(cfg.OutputFormat)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Fact format").
				Description("Encoding of the mined facts").
				Options(
					huh.NewOption("JSON lines", string(facts.FormatJSONL)),
					huh.NewOption("MessagePack", string(facts.FormatMsgpack)),
				).
				Value(&format),
			huh.NewInput().
				Title("Fact file").
				Description("Where batch writes facts; - for stdout").
				Placeholder(cfg.OutputPath).
				Value(&cfg.OutputPath),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.OutputFormat = facts.Format(format)

	// === SECTION 3: Cache ===
	var useCache bool
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Result cache").
				Description("Reuse the facts of functions analyzed in earlier runs?").
				Affirmative("Yes").
				Negative("No").
				Value(&useCache),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if useCache {
		cfg.CachePath = filepath.Join(".gcm", "results.msgpack")
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Cache file").
					Placeholder(cfg.CachePath).
					Value(&cfg.CachePath),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	// === SECTION 4: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.gcm/config.yaml)", "global"),
					huh.NewOption("Project (./.gcm/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	err = form.Run()
	if err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		err = form.Run()
		if err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// Validate config before saving
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Show config preview
	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Printf("Edge-visit ceiling: %d\n", cfg.EdgeVisitCeiling)
	fmt.Printf("Path-sensitive: %t\n", cfg.PathSensitive)
	fmt.Printf("Output: %s (%s)\n", cfg.OutputPath, cfg.OutputFormat)
	if cfg.CachePath != "" {
		fmt.Printf("Cache: %s\n", cfg.CachePath)
	} else {
		fmt.Println("Cache: disabled")
	}
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 5: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, effectiveConfigPath())
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	if absPath, err := filepath.Abs(configPath); err == nil {
		fmt.Printf("Config Path: %s\n", absPath)
	}
	if result.EffectivePath != "" && result.EffectiveScope != result.SavedScope {
		fmt.Printf("Note: %s config at %s takes precedence\n", result.EffectiveScope, result.EffectivePath)
	}
	fmt.Println()
	printComponents(result)
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
