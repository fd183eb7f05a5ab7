package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ComplyOps/Gatherer/internal/catalog"
	"github.com/ComplyOps/Gatherer/internal/log"
	"github.com/ComplyOps/Gatherer/internal/model"
	"github.com/ComplyOps/Gatherer/internal/service"
)

var (
	userConfigPath string // default config directory for gatherer on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string
	flagVerbose        bool
	flagTimeout        time.Duration
	flagWorkers        int
	flagPrint          bool
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "gatherer")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is gatherer.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "per-fetcher timeout, overrides config and FETCHER_TIMEOUT")
	rootCmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "parallel fetcher executions, default 1 (sequential)")

	runCmd.Flags().BoolVar(&flagPrint, "print", false, "print the run summary to stdout")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = initGatherer

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("gatherer failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "gatherer",
	Short:        "Batch runner collecting compliance evidence via fetcher scripts",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run expands the configuration and executes every fetcher instance",
	RunE:  doRun,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "plan prints the expanded fetcher instances without executing them",
	RunE:  doPlan,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "catalog validates the fetcher catalog and lists its entries",
	RunE:  doCatalog,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of gatherer",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("gatherer: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("gatherer: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ctx = log.ContextAttrs(ctx,
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)

	collector, err := service.NewCollector(ctx, config, os.Environ())
	if err != nil {
		return err
	}
	defer collector.Close(ctx)

	if flagPrint {
		collector.AddUploader(service.NewWriteUploader(cmd.OutOrStdout()))
	}

	if config.Service.Mode == model.ServiceModeTimer {
		return service.Schedule(ctx, collector, config.Service)
	}

	_, err = collector.Do(ctx)
	return err
}

func doPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	collector, err := service.NewCollector(ctx, config, os.Environ())
	if err != nil {
		return err
	}
	defer collector.Close(ctx)

	out := cmd.OutOrStdout()
	for _, inst := range collector.Plan() {
		resource := inst.Binding.ProjectID
		if resource == "" {
			resource = inst.Binding.Region
		}
		if resource == "" {
			resource = inst.Binding.Profile
		}
		fmt.Fprintf(out, "%-48s %-12s %s\n", inst.InstanceName, inst.Fetcher.Service, resource)
	}
	fmt.Fprintf(out, "%d instances, timeout %s\n", len(collector.Plan()), collector.Timeout())
	return nil
}

func doCatalog(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Load(config.Catalog, config.Fetchers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, def := range cat.Definitions() {
		fmt.Fprintf(out, "%-48s %-12s %s\n", def.Name, def.Service, def.ScriptPath)
	}
	fmt.Fprintf(out, "catalog valid, %d fetchers\n", cat.Len())
	return nil
}

func initGatherer(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("GATHERERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "gatherer.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		// store default configuration
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "gatherer.yaml")
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		config = model.DefaultConfig()
		if err := v.Unmarshal(&config); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// flags have precedence over the config file
	if flagVerbose {
		config.Service.Verbose = true
	}
	if cmd.Flags().Changed("timeout") {
		config.Timeout = flagTimeout
	}
	if cmd.Flags().Changed("workers") {
		config.Workers = flagWorkers
	}

	slog.SetDefault(log.New(config.Service.Verbose))
	slog.Debug("gatherer start", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
