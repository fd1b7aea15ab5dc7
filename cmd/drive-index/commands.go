package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/drive-index/internal/adapters/driven/auth"
	"github.com/custodia-labs/drive-index/internal/adapters/driven/postgres"
	"github.com/custodia-labs/drive-index/internal/core/domain"
)

// shutdownTimeout bounds how long running jobs get to finish on exit
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search and dashboard API",
	Long: "Run the HTTP API without crawl workers. The in-process index is loaded\n" +
		"from the durable stores and refreshed periodically, so DATABASE_URL is required.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), modeServe)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run crawl workers, the change ingestor and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), modeWorker)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run the API and the crawl workers in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), modeAll)
	},
}

type runMode string

const (
	modeServe  runMode = "serve"
	modeWorker runMode = "worker"
	modeAll    runMode = "all"
)

func run(parent context.Context, mode runMode) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	logger := slog.Default()
	logger.Info("drive-index starting", "version", version, "mode", mode)

	if mode == modeServe && !cfg.durable() {
		return errors.New("serve needs DATABASE_URL to share state with workers; use 'all' for a single process")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if mode != modeServe {
		if err := a.withCrawler(ctx); err != nil {
			return err
		}
	}
	if err := a.rebuildIndex(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if mode != modeWorker {
		server := a.newServer()
		g.Go(func() error {
			return server.Start(gctx)
		})
	}
	if mode == modeServe {
		g.Go(func() error {
			return a.builder.Run(gctx, cfg.indexRefresh)
		})
	}
	if mode != modeServe {
		w := a.newWorker()
		// Stop drains running jobs; cancelling gctx only ends claiming.
		if err := w.Start(context.WithoutCancel(gctx)); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("stopping worker")
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return w.Stop(stopCtx)
		})
	}

	err = g.Wait()
	logger.Info("drive-index stopped")
	return err
}

var parseMime string

var parseCmd = &cobra.Command{
	Use:   "parse [path...]",
	Short: "Run the taxonomy parser on folder paths",
	Long:  "Parse paths given as arguments, or one per line on stdin, and print their tags as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := loadParser(getEnv("TAXONOMY_FILE", ""))
		if err != nil {
			return err
		}

		paths := args
		if len(paths) == 0 {
			if paths, err = readLines(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, p := range paths {
			result := parser.Parse(p, parseMime)
			if err := enc.Encode(struct {
				Path       string            `json:"path"`
				Tags       domain.Tags       `json:"tags"`
				Confidence domain.Confidence `json:"confidence"`
			}{p, result.Tags, result.Confidence}); err != nil {
				return err
			}
		}
		return nil
	},
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the PostgreSQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := getEnv("DATABASE_URL", "")
		if url == "" || url == "memory" {
			return errors.New("DATABASE_URL is required")
		}

		ctx := cmd.Context()
		db, err := postgres.Connect(ctx, dbConfig(url))
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		slog.Info("schema up to date")
		return nil
	},
}

var (
	tokenSubject string
	tokenGroups  []string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token signed with JWT_SECRET (development)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSubject == "" {
			return errors.New("--sub is required")
		}
		now := time.Now()
		adapter := auth.NewAdapter(getEnv("JWT_SECRET", "development-secret-change-in-production"), "")
		token, err := adapter.GenerateToken(&domain.TokenClaims{
			Subject:   tokenSubject,
			Groups:    tokenGroups,
			Role:      domain.Role(tokenRole),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(tokenTTL).Unix(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <key>",
	Short: "Print the bcrypt hash of an operator key for OPERATOR_KEY_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.NewAdapter("", "").HashKey(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseMime, "mime", "", "MIME type used for the fileType facet")

	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "subject, e.g. alice@school.org")
	tokenCmd.Flags().StringSliceVar(&tokenGroups, "groups", nil, "group memberships")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(domain.RoleSearcher), "searcher or operator")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
