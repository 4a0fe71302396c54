package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/teamchat/docshots/packages/capture"
	"github.com/teamchat/docshots/packages/chatapi"
	"github.com/teamchat/docshots/packages/core/config"
	"github.com/teamchat/docshots/packages/fixture"
	"github.com/teamchat/docshots/packages/httpc"
	"github.com/teamchat/docshots/packages/manifest"
	"github.com/teamchat/docshots/packages/output"
	"github.com/teamchat/docshots/packages/registry"
	"github.com/teamchat/docshots/packages/request"
	"github.com/teamchat/docshots/packages/shooter"
)

var shootCmd = &cobra.Command{
	Use:   "shoot [integration ...]",
	Short: "Generate integration documentation screenshots",
	Long: `Replay fixtures against the local chat server and capture
screenshots of the resulting messages.

Exactly one selection mode is required: --all, --skip-until, or one or
more integration names.

Examples:
  docshots shoot --all
  docshots shoot --skip-until gitlab
  docshots shoot github sentry
  docshots shoot github --fixture push__multiple_commits.json
  docshots shoot github --use-basic-auth
  docshots shoot github --custom-headers '{"X-Custom": "value"}'`,
	RunE: shootCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	allFlagB      bool
	skipUntilFlag string
	fixtureFlag   string

	useBasicAuthFlag        bool
	payloadAsQueryParamFlag bool
	payloadParamNameFlag    string
	customHeadersFlag       string
	extraParamsFlag         string
	imageNameFlag           string
	imageDirFlag            string
	botNameFlag             string

	shootVerboseFlag bool
	shootNoColorFlag bool
	watchFlag        bool
	registryFlag     string
	manifestFlag     string
)

func init() {
	registerShootFlags(shootCmd)
}

// registerShootFlags binds the shoot flags to cmd. Registering also resets
// the bound variables to their defaults.
func registerShootFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&allFlagB, "all", false, "Process every integration in the catalog")
	cmd.Flags().StringVar(&skipUntilFlag, "skip-until", "", "Process integrations from the named one onward")
	cmd.Flags().StringVar(&fixtureFlag, "fixture", "", "Fixture file override (requires exactly one integration)")

	cmd.Flags().BoolVar(&useBasicAuthFlag, "use-basic-auth", false, "Send HTTP Basic credentials derived from the bot identity")
	cmd.Flags().BoolVar(&payloadAsQueryParamFlag, "payload-as-query-param", false, "Send the payload in a query parameter instead of the body")
	cmd.Flags().StringVar(&payloadParamNameFlag, "payload-param-name", "", "Query parameter name for --payload-as-query-param")
	cmd.Flags().StringVar(&customHeadersFlag, "custom-headers", "", "Extra request headers as a JSON object")
	cmd.Flags().StringVar(&extraParamsFlag, "extra-params", "", "Extra query parameters as a JSON object")
	cmd.Flags().StringVar(&imageNameFlag, "image-name", "", "Output image file name override")
	cmd.Flags().StringVar(&imageDirFlag, "image-dir", "", "Output image directory override")
	cmd.Flags().StringVar(&botNameFlag, "bot-name", "", "Bot display name override")

	cmd.Flags().BoolVarP(&shootVerboseFlag, "verbose", "v", false, "Verbose output")
	cmd.Flags().BoolVar(&shootNoColorFlag, "no-color", getEnvBool("DOCSHOTS_NO_COLOR", false), "Disable colored output (env: DOCSHOTS_NO_COLOR)")
	cmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch fixture files and re-run on change")
	cmd.Flags().StringVar(&registryFlag, "registry", "", "Path to a YAML registry overlay file")
	cmd.Flags().StringVar(&manifestFlag, "manifest", getEnvString("DOCSHOTS_MANIFEST", ""), "SQLite manifest path for recording runs (env: DOCSHOTS_MANIFEST)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

// item is one integration+config pair scheduled for processing.
type item struct {
	integration *registry.Integration
	cfg         registry.ScreenshotConfig
}

func shootCommand(cmd *cobra.Command, args []string) error {
	formatter := output.NewConsoleFormatter(
		output.WithVerbose(shootVerboseFlag),
		output.WithNoColor(shootNoColorFlag),
	)
	formatter.FormatHeader(version)

	fileConfig, err := config.Load(configFlag)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}
	if fileConfig.GetVerbose() {
		shootVerboseFlag = true
	}

	reg := registry.Builtin()
	registryFile := fileConfig.RegistryFile
	if registryFlag != "" {
		registryFile = registryFlag
	}
	if registryFile != "" {
		if err := reg.LoadFile(registryFile); err != nil {
			formatter.FormatError(err)
			os.Exit(ExitConfigError)
		}
	}

	items, err := selectItems(cmd, reg, args, formatter)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitUsageError)
	}

	sh, cleanup, err := buildShooter(fileConfig)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}
	defer cleanup()

	ctx := context.Background()
	runAll := func() (failed int) {
		return runItems(ctx, sh, items, formatter)
	}

	failed := runAll()

	if !watchFlag {
		if failed > 0 {
			os.Exit(ExitItemFailure)
		}
		return nil
	}

	return watchFixtures(cmd, fileConfig.FixturesDir, items, formatter, runAll)
}

// selectItems resolves the mutually exclusive selection modes into the
// ordered list of integration+config pairs to process.
func selectItems(cmd *cobra.Command, reg *registry.Registry, args []string, formatter *output.ConsoleFormatter) ([]item, error) {
	modes := 0
	if allFlagB {
		modes++
	}
	if skipUntilFlag != "" {
		modes++
	}
	if len(args) > 0 {
		modes++
	}
	if modes != 1 {
		return nil, fmt.Errorf("exactly one selection mode is required: --all, --skip-until, or integration names")
	}

	if fixtureFlag != "" && len(args) != 1 {
		return nil, fmt.Errorf("--fixture requires exactly one integration name")
	}

	overrides := overrideFlagsChanged(cmd)

	switch {
	case allFlagB, skipUntilFlag != "":
		// Batch modes run the catalog's own screenshot configs; per-item
		// override flags do not apply and are ignored with a warning.
		if overrides {
			formatter.FormatWarning("per-item override flags are ignored with --all/--skip-until; using catalog defaults")
		}

		var integrations []*registry.Integration
		if allFlagB {
			integrations = reg.All()
		} else {
			var err error
			integrations, err = reg.From(skipUntilFlag)
			if err != nil {
				return nil, err
			}
		}

		var items []item
		for _, i := range integrations {
			items = append(items, integrationItems(i)...)
		}
		return items, nil

	default:
		var items []item
		for _, name := range args {
			i, ok := reg.Get(name)
			if !ok {
				return nil, fmt.Errorf("unknown integration %q", name)
			}

			base := integrationItems(i)
			for _, it := range base {
				items = append(items, item{integration: i, cfg: applyOverrides(cmd, it.cfg)})
			}
		}
		return items, nil
	}
}

// integrationItems expands an integration into its configured screenshot
// items. An integration with no configs still yields one item with an
// empty fixture.
func integrationItems(i *registry.Integration) []item {
	if len(i.Configs) == 0 {
		return []item{{integration: i}}
	}

	items := make([]item, 0, len(i.Configs))
	for _, cfg := range i.Configs {
		items = append(items, item{integration: i, cfg: cfg})
	}
	return items
}

var overrideFlagNames = []string{
	"fixture", "use-basic-auth", "payload-as-query-param", "payload-param-name",
	"custom-headers", "extra-params", "image-name", "image-dir", "bot-name",
}

func overrideFlagsChanged(cmd *cobra.Command) bool {
	for _, name := range overrideFlagNames {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// applyOverrides layers CLI flags over a catalog screenshot config.
// Invalid combinations are configuration errors and exit immediately,
// before any network or data action.
func applyOverrides(cmd *cobra.Command, cfg registry.ScreenshotConfig) registry.ScreenshotConfig {
	if fixtureFlag != "" {
		cfg.FixtureName = fixtureFlag
	}
	if cmd.Flags().Changed("use-basic-auth") {
		cfg.UseBasicAuth = useBasicAuthFlag
	}
	if cmd.Flags().Changed("payload-as-query-param") {
		cfg.PayloadAsQueryParam = payloadAsQueryParamFlag
	}
	if cmd.Flags().Changed("payload-param-name") {
		cfg.PayloadParamName = payloadParamNameFlag
	}
	if imageNameFlag != "" {
		cfg.ImageName = imageNameFlag
	}
	if imageDirFlag != "" {
		cfg.ImageDir = imageDirFlag
	}
	if botNameFlag != "" {
		cfg.BotName = botNameFlag
	}

	if customHeadersFlag != "" {
		headers, err := fixture.ParseCustomHeaders(customHeadersFlag)
		if err != nil {
			// Configuration error, surfaced before any network call.
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitConfigError)
		}
		cfg.CustomHeaders = mergeMaps(cfg.CustomHeaders, headers)
	}

	if extraParamsFlag != "" {
		params, err := request.ParseExtraParams(extraParamsFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitConfigError)
		}
		cfg.ExtraParams = mergeMaps(cfg.ExtraParams, params)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfigError)
	}

	return cfg
}

func mergeMaps(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// buildShooter wires the shared collaborators for a run.
func buildShooter(fileConfig *config.Config) (*shooter.Shooter, func(), error) {
	httpClient := httpc.NewClient()
	chat := chatapi.NewClient(httpClient, fileConfig.SiteURL, fileConfig.AdminEmail, fileConfig.AdminAPIKey)
	capt := capture.NewRunner(fileConfig.CaptureCommand, fileConfig.CaptureScript,
		capture.WithVerbose(shootVerboseFlag))

	cleanup := func() {}
	var opts []shooter.Option

	manifestPath := fileConfig.ManifestPath
	if manifestFlag != "" {
		manifestPath = manifestFlag
	}
	if manifestPath != "" {
		store, err := manifest.Open(manifestPath)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = store.Close() }
		opts = append(opts, shooter.WithManifest(store))
	}

	sh := shooter.New(httpClient, chat, capt,
		fileConfig.SiteURL, fileConfig.FixturesDir, fileConfig.ImageDir,
		fileConfig.AdminEmail, opts...)
	return sh, cleanup, nil
}

// runItems processes items sequentially, one fully before the next.
// Fatal errors exit the process with the matching code; item-level
// delivery failures are reported and counted, and the batch continues.
func runItems(ctx context.Context, sh *shooter.Shooter, items []item, formatter *output.ConsoleFormatter) int {
	captured, failed, skipped := 0, 0, 0
	start := time.Now()

	for _, it := range items {
		result, err := sh.Shoot(ctx, it.integration, it.cfg)
		if err != nil {
			formatter.FormatError(err)
			exitForError(err)
		}

		formatter.FormatResult(result)
		switch result.Status {
		case shooter.StatusCaptured:
			captured++
		case shooter.StatusDeliveryFailed:
			failed++
		case shooter.StatusCaptureSkipped:
			skipped++
		}
	}

	formatter.FormatSummary(captured, failed, skipped, time.Since(start))
	return failed
}

// exitForError maps a fatal error to its exit code and terminates.
func exitForError(err error) {
	switch {
	case errors.Is(err, shooter.ErrServerUnreachable):
		os.Exit(ExitNetworkError)
	case errors.Is(err, shooter.ErrBadFixture):
		os.Exit(ExitFixtureError)
	default:
		os.Exit(ExitItemFailure)
	}
}

// watchFixtures re-runs the selected items whenever one of their fixture
// directories changes.
func watchFixtures(cmd *cobra.Command, fixturesDir string, items []item, formatter *output.ConsoleFormatter, runAll func() int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, it := range items {
		dir := filepath.Join(fixturesDir, it.integration.Name)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
			continue
		}
		watchedDirs[dir] = true
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching %s fixture director%s for changes... (press Ctrl+C to stop)\n\n",
		strconv.Itoa(len(watchedDirs)), plural(len(watchedDirs), "y", "ies"))

	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFixture changed: %s\nRe-running...\n\n", event.Name)
					runAll()
					fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n")
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
