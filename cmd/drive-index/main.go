package main

// @title           Drive Index API
// @version         1.0
// @description     Faceted, permission-aware search over a crawled Google Drive curriculum, plus the crawl operations dashboard.

// @contact.name   Custodia Labs
// @contact.url    https://github.com/custodia-labs/drive-index/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

// @securityDefinitions.apikey OperatorKey
// @in header
// @name X-Operator-Key
// @description Operator key for crawl dashboard mutations

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	_ "github.com/custodia-labs/drive-index/docs"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "drive-index",
	Short:         "Crawl a Drive folder tree into a faceted, permission-aware search index",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(newLogger(getEnv("LOG_FORMAT", "text"), getEnv("LOG_LEVEL", "info")))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, allCmd, parseCmd, migrateCmd, tokenCmd, hashKeyCmd)
}

// newLogger builds the process logger from LOG_FORMAT and LOG_LEVEL
func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
