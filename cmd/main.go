package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/memfs/adapters"
	"github.com/brettbedarf/memfs/config"
	"github.com/brettbedarf/memfs/internal/util"
	"github.com/brettbedarf/memfs/requests"
	"github.com/brettbedarf/memfs/server"
	flag "github.com/spf13/pflag"
)

func main() {
	// Parse command line arguments
	var (
		configPath string
		verbose    int
		nodesDef   string
		umount     bool
		allowOther bool
	)
	flag.StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	flag.StringVarP(&nodesDef, "nodes", "n", "", "Path to a YAML or JSON manifest of nodes to seed before mounting")
	flag.BoolVarP(&umount, "umount", "u", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.IntVarP(&verbose, "verbose", "v", 0, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.BoolVar(&allowOther, "allow-other", false, "Let users other than the mounting user access the fs")
	flag.Parse()

	// Layer the config: defaults, then file, then env, then flags
	cfg := config.NewDefaultConfig()
	var fileErr error
	if configPath != "" {
		var fileCfg *config.Config
		if fileCfg, fileErr = config.NewConfigFromFile(configPath); fileErr == nil {
			cfg = fileCfg
		}
	}
	envOverride, envErr := config.LoadEnvOverride()
	if envErr == nil {
		cfg.Merge(envOverride)
	}
	flagOverride := &config.ConfigOverride{}
	if flag.CommandLine.Changed("verbose") {
		flagOverride.LogLvl = &verbose
	}
	if flag.CommandLine.Changed("allow-other") {
		flagOverride.AllowOther = &allowOther
	}
	cfg.Merge(flagOverride)

	// Initialize logger
	util.InitializeLogger(cfg.LogLvl)
	logger := util.GetLogger("main")

	if fileErr != nil {
		logger.Fatal().Err(fileErr).Str("config", configPath).Msg("Failed to load config file")
	}
	if envErr != nil {
		logger.Fatal().Err(envErr).Msg("Failed to load environment config")
	}

	mnt := flag.Arg(0)
	logger.Info().Int("logLvl", cfg.LogLvl).Str("nodes", nodesDef).Str("mnt", mnt).Msg("MemFS server initializing")
	// Check if mount point is provided
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	fs, err := server.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create filesystem")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// Seed nodes
	if nodesDef != "" {
		defData, err := os.ReadFile(nodesDef)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to read nodes file")
		}
		reqs, err := requests.Unmarshal(defData)
		if err != nil {
			logger.Fatal().Err(err).Str("nodes", nodesDef).Msg("Failed to parse nodes file")
		}
		logger.Debug().Int("nodes", len(reqs)).Msg("Nodes file loaded successfully")

		registry := adapters.NewRegistry()
		adapters.RegisterBuiltins(registry)

		if _, err := requests.NewSeeder(fs, registry).Apply(ctx, reqs); err != nil {
			if ctx.Err() != nil {
				logger.Fatal().Err(err).Msg("Interrupted while seeding")
			}
			logger.Warn().Err(err).Msg("Some nodes could not be seeded")
		}
	} else {
		logger.Info().Msg("No nodes file provided; starting empty")
	}

	// Serve
	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	unmounted := make(chan struct{})
	go func() {
		fs.Wait()
		close(unmounted)
	}()

	// Wait for termination signal or an external unmount
	select {
	case <-ctx.Done():
		logger.Info().Msg("Received signal, unmounting filesystem")
	case <-unmounted:
		logger.Info().Msg("Filesystem was unmounted externally")
		return
	}

	// Unmount the filesystem
	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
}
