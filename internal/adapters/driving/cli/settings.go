package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jam/internal/core/domain"
)

// secretKeys are masked when printed.
var secretKeys = map[string]bool{
	"embedding.api_key": true,
}

func newConfigCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage application settings",
		Long: `View and change settings stored in ~/.jam/config.toml.

Any key can be overridden by an environment variable named JAM_ followed by
the key in upper case with dots replaced by underscores, e.g.
JAM_EMBEDDING_API_KEY. A .env file in the working directory is loaded first.`,
	}

	embeddingCmd := &cobra.Command{
		Use:   "embedding [provider] [model]",
		Short: "Configure the embedding provider",
		Long: `Sets the embedding provider with its default base URL and model
dimensions. Providers: ollama, openai. openai reads the API key from
--api-key, or from embedding.api_key when the flag is omitted.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigEmbedding(cmd, rt, args)
		},
	}
	embeddingCmd.Flags().String("api-key", "", "API key for providers that need one")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [key]",
			Short: "Print one setting, or every setting",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigGet(cmd, rt, args)
			},
		},
		&cobra.Command{
			Use:   "set [key] [value]",
			Short: "Change a setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigSet(cmd, rt, args[0], args[1])
			},
		},
		embeddingCmd,
		&cobra.Command{
			Use:   "validate",
			Short: "Check the settings and reach the embedding provider",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runConfigValidate(cmd, rt)
			},
		},
	)
	return cmd
}

func runConfigGet(cmd *cobra.Command, rt *runtime, args []string) error {
	settings, err := rt.settingsService()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		value, err := settings.GetValue(args[0])
		if err != nil {
			return err
		}
		cmd.Println(displayValue(args[0], value))
		return nil
	}

	for _, key := range settings.Keys() {
		value, err := settings.GetValue(key)
		if err != nil {
			return err
		}
		cmd.Printf("%s = %s\n", key, displayValue(key, value))
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, rt *runtime, key, value string) error {
	settings, err := rt.settingsService()
	if err != nil {
		return err
	}
	if err := settings.SetValue(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	cmd.Printf("Set %s = %s\n", key, displayValue(key, value))
	return nil
}

func runConfigEmbedding(cmd *cobra.Command, rt *runtime, args []string) error {
	settings, err := rt.settingsService()
	if err != nil {
		return err
	}

	provider := domain.AIProvider(strings.ToLower(args[0]))
	model := ""
	if len(args) == 2 {
		model = args[1]
	}
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" && provider.RequiresAPIKey() {
		if apiKey, err = settings.GetValue("embedding.api_key"); err != nil {
			return err
		}
	}

	if err := settings.SetEmbeddingProvider(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to set embedding provider: %w", err)
	}

	current, err := settings.Get()
	if err != nil {
		return err
	}
	cmd.Printf("Embedding provider: %s\n", current.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", current.Embedding.Model)
	if current.Embedding.Provider.IsLocal() {
		cmd.Printf("  Base URL: %s\n", current.Embedding.BaseURL)
	}
	if current.Embedding.Dimensions > 0 {
		cmd.Printf("  Dimensions: %d\n", current.Embedding.Dimensions)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, rt *runtime) error {
	settings, err := rt.settingsService()
	if err != nil {
		return err
	}

	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'jam config set' to fix configuration issues.")
		return err
	}

	current, err := settings.Get()
	if err != nil {
		return err
	}
	if current.Embedding.Provider == "" {
		cmd.Println("Embedding: not configured (keyword queries only)")
	} else {
		if err := settings.ValidateEmbeddingConfig(); err != nil {
			return fmt.Errorf("embedding provider %s: %w", current.Embedding.Provider, err)
		}
		cmd.Printf("Embedding: %s reachable\n", current.Embedding.Provider)
	}

	cmd.Println("Configuration is valid.")
	return nil
}

func displayValue(key, value string) string {
	if secretKeys[key] && value != "" {
		return maskAPIKey(value)
	}
	return value
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
