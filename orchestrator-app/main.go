package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/proof-orchestrator/log"
	"github.com/compose-network/proof-orchestrator/orchestrator-app/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "orchestrator",
		Short: "Proof orchestrator",
		Long:  banner + "\n\nCoordinates proof generation across worker fleets and drives verified batches to the settlement layer.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}
)

const banner = `
 ██████╗ ██████╗  ██████╗██╗  ██╗███████╗███████╗████████╗██████╗  █████╗
██╔═══██╗██╔══██╗██╔════╝██║  ██║██╔════╝██╔════╝╚══██╔══╝██╔══██╗██╔══██╗
██║   ██║██████╔╝██║     ███████║█████╗  ███████╗   ██║   ██████╔╝███████║
██║   ██║██╔══██╗██║     ██╔══██║██╔══╝  ╚════██║   ██║   ██╔══██╗██╔══██║
╚██████╔╝██║  ██║╚██████╗██║  ██║███████╗███████║   ██║   ██║  ██║██║  ██║
 ╚═════╝ ╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config",
		"orchestrator-app/configs/config.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// Coordinator flags
	rootCmd.PersistentFlags().String("listen-addr", "", "worker listen address")
	rootCmd.PersistentFlags().Int("max-connections", 0, "maximum concurrent worker connections")
	rootCmd.PersistentFlags().Duration("read-timeout", 0, "worker connection read timeout")
	rootCmd.PersistentFlags().Duration("write-timeout", 0, "worker connection write timeout")

	// Settlement flags
	rootCmd.PersistentFlags().String("settlement.rpc-endpoint", "", "settlement RPC endpoint")
	rootCmd.PersistentFlags().String("settlement.contract-address", "", "on-chain verifier contract address")
	rootCmd.PersistentFlags().Uint64("settlement.chain-id", 0, "settlement chain id")

	// Store flags
	rootCmd.PersistentFlags().String("store.backend", "", "proof store backend (memory, disk)")
	rootCmd.PersistentFlags().String("store.dir", "", "proof store data directory for the disk backend")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "orchestrator-app/configs/config.yaml"
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.Coordinator.ListenAddr).
		Str("api_addr", cfg.API.ListenAddr).
		Str("store_backend", cfg.Store.Backend).
		Strs("required_provers", cfg.Provers.Required).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if errors.Is(err, os.ErrNotExist) {
		// No config file yet; print the built-in defaults as a template.
		cfg = config.Default()
	} else if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)

	// Never echo the signing key.
	cfg.Settlement.PrivateKeyHex = "<redacted>"

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Proof Orchestrator\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("listen-addr").Changed {
		cfg.Coordinator.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("max-connections").Changed {
		cfg.Coordinator.MaxConnections, _ = cmd.Flags().GetInt("max-connections")
	}
	if cmd.Flag("read-timeout").Changed {
		cfg.Coordinator.ReadTimeout, _ = cmd.Flags().GetDuration("read-timeout")
	}
	if cmd.Flag("write-timeout").Changed {
		cfg.Coordinator.WriteTimeout, _ = cmd.Flags().GetDuration("write-timeout")
	}

	if cmd.Flag("settlement.rpc-endpoint").Changed {
		cfg.Settlement.RPCEndpoint, _ = cmd.Flags().GetString("settlement.rpc-endpoint")
	}
	if cmd.Flag("settlement.contract-address").Changed {
		cfg.Settlement.ContractAddress, _ = cmd.Flags().GetString("settlement.contract-address")
	}
	if cmd.Flag("settlement.chain-id").Changed {
		if v, err := cmd.Flags().GetUint64("settlement.chain-id"); err == nil {
			cfg.Settlement.ChainID = v
		}
	}

	if cmd.Flag("store.backend").Changed {
		cfg.Store.Backend, _ = cmd.Flags().GetString("store.backend")
	}
	if cmd.Flag("store.dir").Changed {
		cfg.Store.Dir, _ = cmd.Flags().GetString("store.dir")
	}
}
