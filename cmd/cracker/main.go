// Package main implements cracker, a brute-force password guessing
// simulation.
//
// One producer generates a printable password each round, encrypts it under
// a short random key and publishes the ciphertext. A pool of decrypters
// guesses random keys until one of them recovers the password; the producer
// then logs the result and starts the next round. With a timeout configured,
// an unsolved round is abandoned and regenerated.
//
// Usage:
//
//	cracker [-t timeout seconds] [-n|--num-of-decrypters <number>] [-l|--password-length <length>]
//
// Additional flags:
//   - -c/--config: YAML file with any of the settings below
//   - --pause: delay between rounds (default 1s)
//   - --status-addr: serve the status API on this address
//   - --history-file: write finished rounds as YAML on shutdown
//   - --history-limit: finished rounds kept in memory (default 1000)
//
// Environment:
//   - CRACKER_STATUS_ADDR, CRACKER_HISTORY_FILE, CRACKER_HISTORY_LIMIT
//
// Precedence: defaults, then the config file, then the environment, then
// flags given on the command line.
//
// Querying a running instance:
//
//	cracker status --addr 127.0.0.1:8090
//
// Exit codes:
//   - 0: interrupted by SIGINT/SIGTERM
//   - 1: invalid flags or configuration, crypto initialization failure,
//     or a failure while generating a round
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dreamware/cracker/internal/cipher"
	"github.com/dreamware/cracker/internal/config"
	"github.com/dreamware/cracker/internal/history"
	"github.com/dreamware/cracker/internal/logging"
	"github.com/dreamware/cracker/internal/round"
	"github.com/dreamware/cracker/internal/status"
)

// runSimulation is a variable so tests can intercept a fully resolved
// configuration without starting the simulation.
var runSimulation = run

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the command tree.
func newRootCommand() *cobra.Command {
	flags := config.Default()
	var configFile string

	cmd := &cobra.Command{
		Use:   "cracker [-t timeout seconds] [-n|--num-of-decrypters <number>] [-l|--password-length <length>]",
		Short: "Simulate a multi-worker brute-force password search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, configFile, flags)
			if err != nil {
				return err
			}
			// Past validation, failures are runtime errors, not usage errors.
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulation(ctx, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&flags.Workers, "num-of-decrypters", "n", flags.Workers, "number of decrypter workers")
	f.IntVarP(&flags.PasswordLength, "password-length", "l", flags.PasswordLength, "password length in bytes, a multiple of 8")
	f.IntVarP(&flags.Timeout, "timeout", "t", flags.Timeout, "seconds to wait for a decryption before regenerating; <= 0 waits forever")
	f.StringVarP(&configFile, "config", "c", "", "YAML configuration file")
	f.DurationVar(&flags.Pause, "pause", flags.Pause, "delay between rounds")
	f.StringVar(&flags.StatusAddr, "status-addr", flags.StatusAddr, "serve the status API on this address")
	f.StringVar(&flags.HistoryFile, "history-file", flags.HistoryFile, "write finished rounds to this YAML file on shutdown")
	f.IntVar(&flags.HistoryLimit, "history-limit", flags.HistoryLimit, "finished rounds kept in memory")

	cmd.AddCommand(newStatusCommand())
	return cmd
}

// resolveConfig layers the config file, the environment and the flags that
// were explicitly given, then validates the result.
func resolveConfig(cmd *cobra.Command, configFile string, flags config.Config) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("num-of-decrypters") {
		cfg.Workers = flags.Workers
	}
	if changed("password-length") {
		cfg.PasswordLength = flags.PasswordLength
	}
	if changed("timeout") {
		cfg.Timeout = flags.Timeout
	}
	if changed("pause") {
		cfg.Pause = flags.Pause
	}
	if changed("status-addr") {
		cfg.StatusAddr = flags.StatusAddr
	}
	if changed("history-file") {
		cfg.HistoryFile = flags.HistoryFile
	}
	if changed("history-limit") {
		cfg.HistoryLimit = flags.HistoryLimit
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// run wires the simulation together and blocks until ctx is cancelled or the
// producer fails.
//
// Implementation:
//  1. Self-test the cipher (fatal on failure, nothing started)
//  2. Create the shared state, history store, producer and worker pool
//  3. Start the status server if configured
//  4. Start the workers, then run the producer in this goroutine
//  5. On return, stop everything and export the history if configured
func run(ctx context.Context, cfg config.Config, stdout io.Writer) error {
	provider := cipher.NewStream()
	random := cipher.NewSystemRandom()
	if err := cipher.Init(provider, random); err != nil {
		return fmt.Errorf("failed to initialize crypto: %w", err)
	}

	runID := uuid.NewString()
	logger := logging.New(stdout)
	state := round.NewState(cfg.PasswordLength)
	hist := history.NewMemoryStore(cfg.HistoryLimit)

	producer := round.NewProducer(state, provider, random, logger)
	producer.SetTimeout(cfg.TimeoutDuration())
	producer.SetPause(cfg.Pause)
	producer.SetRecorder(hist)

	pool := round.NewPool(cfg.Workers, state, provider, random, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var statusDone chan struct{}
	if cfg.StatusAddr != "" {
		srv := status.NewServer(runID, state, pool, hist)
		statusDone = make(chan struct{})
		go func() {
			defer close(statusDone)
			if err := srv.ListenAndServe(ctx, cfg.StatusAddr); err != nil {
				log.Printf("status server: %v", err)
			}
		}()
	}

	log.Printf("run %s: %d decrypters, password length %d, key length %d, timeout %d",
		runID, cfg.Workers, cfg.PasswordLength, cfg.KeyLength(), cfg.Timeout)

	pool.Start(ctx)
	err := producer.Run(ctx)
	if err != nil {
		err = fmt.Errorf("round controller: %w", err)
		log.Print(err)
	}

	cancel()
	if werr := pool.Wait(); werr != nil {
		log.Printf("decrypters stopped with errors: %v", werr)
	}
	if statusDone != nil {
		<-statusDone
	}
	if cfg.HistoryFile != "" {
		if herr := writeHistory(cfg.HistoryFile, hist, runID); herr != nil {
			log.Printf("history export: %v", herr)
		}
	}
	return err
}

// writeHistory exports the finished rounds to path.
func writeHistory(path string, hist *history.MemoryStore, runID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := hist.WriteYAML(f, runID); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d rounds to %s", hist.Stats().Rounds, path)
	return nil
}

// newStatusCommand builds "cracker status", which prints the status of a
// running instance as indented JSON.
func newStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a running simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			st, err := status.FetchStatus(ctx, addr)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8090", "address of the status server")
	return cmd
}
