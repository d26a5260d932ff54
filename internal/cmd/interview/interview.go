// Package interview parses interview command flags and composes the service
// entrypoint.
package interview

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/devready/devready/internal/platform/cmd"
	server "github.com/devready/devready/internal/services/interview/app"
)

// Config holds interview command configuration.
type Config struct {
	HTTPAddr      string        `env:"DEVREADY_HTTP_ADDR"       envDefault:":8090"`
	RecordDir     string        `env:"DEVREADY_RECORD_DIR"      envDefault:"data/records"`
	ChallengeDir  string        `env:"DEVREADY_CHALLENGE_DIR"   envDefault:"data/challenges"`
	SandboxDBPath string        `env:"DEVREADY_SANDBOX_DB_PATH" envDefault:"data/sandbox.db"`
	RunWorkDir    string        `env:"DEVREADY_RUN_WORK_DIR"`
	AdminKey      string        `env:"DEVREADY_ADMIN_KEY"`
	OpenAIAPIKey  string        `env:"DEVREADY_OPENAI_API_KEY"`
	OpenAIModel   string        `env:"DEVREADY_OPENAI_MODEL"`
	OpenAIBaseURL string        `env:"DEVREADY_OPENAI_BASE_URL"`
	SessionTTL    time.Duration `env:"DEVREADY_SESSION_TTL"     envDefault:"30m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "interview HTTP listen address")
	fs.StringVar(&cfg.RecordDir, "record-dir", cfg.RecordDir, "directory for session record artifacts")
	fs.StringVar(&cfg.ChallengeDir, "challenge-dir", cfg.ChallengeDir, "directory for the challenge library")
	fs.StringVar(&cfg.SandboxDBPath, "sandbox-db", cfg.SandboxDBPath, "path to the SQL sandbox database")
	fs.StringVar(&cfg.RunWorkDir, "run-work-dir", cfg.RunWorkDir, "scratch directory for code runs")
	fs.StringVar(&cfg.AdminKey, "admin-key", cfg.AdminKey, "key authorizing record deletion")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "session lifetime from creation")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the interview app and starts serving.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceInterview, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:      cfg.HTTPAddr,
			RecordDir:     cfg.RecordDir,
			ChallengeDir:  cfg.ChallengeDir,
			SandboxDBPath: cfg.SandboxDBPath,
			RunWorkDir:    cfg.RunWorkDir,
			AdminKey:      cfg.AdminKey,
			OpenAIAPIKey:  cfg.OpenAIAPIKey,
			OpenAIModel:   cfg.OpenAIModel,
			OpenAIBaseURL: cfg.OpenAIBaseURL,
			SessionTTL:    cfg.SessionTTL,
		}); err != nil {
			return fmt.Errorf("serve interview: %w", err)
		}
		return nil
	})
}
