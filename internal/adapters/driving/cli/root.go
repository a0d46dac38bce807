// Package cli implements the jam command tree with cobra.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/jam/internal/core/domain"
	"github.com/custodia-labs/jam/internal/core/ports/driving"
	"github.com/custodia-labs/jam/internal/logger"
)

// Retrieval modes accepted by query --mode.
const (
	ModeKeyword   = "keyword"
	ModeEmbedding = "embedding"
)

// GlobalOptions are the persistent root flags.
type GlobalOptions struct {
	Verbose   bool
	ConfigDir string
}

// Services are the core services a command runs against.
type Services struct {
	Documents  driving.DocumentStore
	Ingest     driving.IngestService
	Retrievers map[string]driving.Retriever

	// Close releases the store and embedding client. May be nil.
	Close func() error
}

// Wiring builds services once the global flags are known.
type Wiring struct {
	// Settings opens the settings service for a config directory.
	Settings func(configDir string) (driving.SettingsService, error)

	// Services builds the store, ingest and retrieval services from settings.
	Services func(settings *domain.AppSettings) (*Services, error)
}

// runtime carries the lazily built services of one command invocation.
type runtime struct {
	wiring   Wiring
	opts     GlobalOptions
	settings driving.SettingsService
	services *Services
}

func (r *runtime) settingsService() (driving.SettingsService, error) {
	if r.settings != nil {
		return r.settings, nil
	}
	if r.wiring.Settings == nil {
		return nil, errors.New("settings service not configured")
	}
	settings, err := r.wiring.Settings(r.opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	r.settings = settings
	return settings, nil
}

func (r *runtime) appSettings() (*domain.AppSettings, error) {
	svc, err := r.settingsService()
	if err != nil {
		return nil, err
	}
	return svc.Get()
}

func (r *runtime) core() (*Services, error) {
	if r.services != nil {
		return r.services, nil
	}
	if r.wiring.Services == nil {
		return nil, errors.New("document store not configured")
	}
	settings, err := r.appSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w. Run 'jam config set' to fix", err)
	}
	services, err := r.wiring.Services(settings)
	if err != nil {
		return nil, err
	}
	r.services = services
	return services, nil
}

func (r *runtime) close() error {
	if r.services == nil || r.services.Close == nil {
		return nil
	}
	err := r.services.Close()
	r.services = nil
	return err
}

// NewRootCommand builds the jam command tree.
func NewRootCommand(version string, wiring Wiring) *cobra.Command {
	rt := &runtime{wiring: wiring}

	root := &cobra.Command{
		Use:   "jam",
		Short: "Content-addressed document store and retrieval",
		Long: `jam stores text documents under deterministic, content-derived IDs,
deduplicates writes under a skip, overwrite or fail policy, and retrieves
the top-k documents for a query by keyword or embedding similarity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger.SetOutput(cmd.ErrOrStderr())
			logger.SetVerbose(rt.opts.Verbose)
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return rt.close()
		},
	}
	root.PersistentFlags().BoolVarP(&rt.opts.Verbose, "verbose", "v", false, "print debug output to stderr")
	root.PersistentFlags().StringVar(&rt.opts.ConfigDir, "config-dir", "", "configuration directory (default ~/.jam)")

	root.AddCommand(
		newWriteCmd(rt),
		newIngestCmd(rt),
		newGetCmd(rt),
		newListCmd(rt),
		newCountCmd(rt),
		newDeleteCmd(rt),
		newQueryCmd(rt),
		newLabelCmd(rt),
		newConfigCmd(rt),
		newVersionCmd(version),
	)
	return root
}
