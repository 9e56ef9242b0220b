package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naka-gawa/github-contrib/internal/checkpoint"
	"github.com/naka-gawa/github-contrib/internal/config"
	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/naka-gawa/github-contrib/internal/export"
	"github.com/naka-gawa/github-contrib/internal/gateway"
	"github.com/naka-gawa/github-contrib/internal/retry"
	"github.com/naka-gawa/github-contrib/internal/usecase"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scans an organization and exports per-user contribution metrics",
	Long: `Scans every repository of an organization, newest first, and exports a CSV
table and a JSON report of commits, pull requests created, merged, and reviewed
per user since --since. Press Ctrl-C to stop after the current repository; the
scan can be resumed later from the saved checkpoint.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringP("org", "o", "", "Target GitHub organization name (defaults to GITHUB_ORG)")
	scanCmd.Flags().String("since", "", "Floor date of the scan window (YYYY-MM-DD)")
	scanCmd.Flags().Bool("resume", false, "Resume from an existing checkpoint without asking")
	scanCmd.Flags().Bool("no-resume", false, "Discard an existing checkpoint without asking")
	scanCmd.Flags().String("report-dir", "", "Directory for exported files (defaults to GHCONTRIB_REPORT_DIR)")
	scanCmd.Flags().Bool("xlsx", false, "Also export an XLSX workbook")
	scanCmd.MarkFlagsMutuallyExclusive("resume", "no-resume")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	p := newPrompter()

	org, _ := cmd.Flags().GetString("org")
	if org == "" {
		org = cfg.Organization
	}
	if org == "" && p.interactive() {
		if org, err = p.line("GitHub organization", ""); err != nil {
			return err
		}
	}
	if org == "" {
		return errors.New("organization is required: use --org or set GITHUB_ORG")
	}

	creds, err := credentials(cfg, p)
	if err != nil {
		return err
	}

	backend, closeBackend, err := newCheckpointBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	cp := checkpoint.New(backend, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		// A second signal terminates immediately.
		stop()
	}()

	state, err := initialState(ctx, cmd, cfg, cp, p, org, log)
	if err != nil {
		return err
	}

	httpClient, err := gateway.NewHTTPClient(creds, cfg.SecondaryLimitMaxSleep, cfg.HTTPTimeout, log)
	if err != nil {
		return err
	}
	gh := gateway.NewGitHubGateway(httpClient, cfg.RequestsPerMinute, log)
	remaining, reset, err := gh.Ping(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("failed to reach GitHub: %w", err)
	}
	log.WithFields(logrus.Fields{
		"remaining": remaining,
		"reset":     reset.Format(time.RFC3339),
	}).Info("GitHub API quota")

	profiles, err := gateway.NewGraphQLProfileResolver(githubv4.NewClient(httpClient), cfg.ProfileCacheSize, gh.Limiter())
	if err != nil {
		return err
	}
	for login, c := range state.Profiles {
		if c.NameSource == domain.NameVerified {
			profiles.Remember(login, domain.Profile{Name: c.Name, Email: c.Email})
		}
	}
	retrier := retry.New(log, retry.WithMaxAttempts(cfg.RetryAttempts), retry.WithBaseDelay(cfg.RetryBaseDelay))

	reportDir, _ := cmd.Flags().GetString("report-dir")
	if reportDir == "" {
		reportDir = cfg.ReportDir
	}
	xlsx, _ := cmd.Flags().GetBool("xlsx")
	writer := export.NewWriter(reportDir, log, export.WithWorkbook(xlsx || cfg.ExportXLSX))

	orchestrator := usecase.NewOrchestrator(
		gh,
		usecase.NewRepoFetcher(gh, profiles, retrier, cfg.MaxConcurrency, log),
		usecase.NewAggregator(log),
		retrier,
		cp,
		writer,
		log.WithField("run_id", writer.RunID()),
	)
	result, err := orchestrator.Run(ctx, state)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Repositories scanned: %d (empty: %d, failed: %d)\n", len(result.Processed), len(result.Empty), len(result.Failed))
	fmt.Fprintf(out, "Contributors: %d\n", len(state.Records))
	fmt.Fprintf(out, "Table: %s\n", writer.Path(export.TableFile))
	fmt.Fprintf(out, "Report: %s\n", writer.Path(export.ReportFile))
	if len(result.Failed) > 0 {
		fmt.Fprintf(out, "Failed repositories will be retried on the next resume: %v\n", result.Failed)
	}

	if result.Status == usecase.StatusInterrupted {
		fmt.Fprintf(out, "Scan stopped. Progress saved to %s; run the same command again to resume.\n", cp.Location())
		return &exitError{code: exitInterrupted}
	}
	return nil
}

// credentials returns the configured token, GitHub App credentials, or a token
// typed at a masked prompt.
func credentials(cfg config.Config, p *prompter) (gateway.Credentials, error) {
	if cfg.GithubToken != "" {
		return gateway.Credentials{Token: cfg.GithubToken}, nil
	}
	if cfg.HasAppCredentials() {
		key, err := cfg.AppPrivateKey()
		if err != nil {
			return gateway.Credentials{}, err
		}
		return gateway.Credentials{
			AppClientID:       cfg.GithubAppClientID,
			AppPrivateKey:     key,
			AppInstallationID: cfg.GithubAppInstallationID,
		}, nil
	}
	if p.interactive() {
		token, err := p.secret("GitHub token: ")
		if err != nil {
			return gateway.Credentials{}, err
		}
		if token != "" {
			return gateway.Credentials{Token: token}, nil
		}
	}
	return gateway.Credentials{}, errors.New("GITHUB_TOKEN environment variable is not set")
}

// initialState resumes from the checkpoint or starts a fresh scan.
func initialState(ctx context.Context, cmd *cobra.Command, cfg config.Config, cp *checkpoint.Checkpointer, p *prompter, org string, log logrus.FieldLogger) (*domain.ScanState, error) {
	snap := cp.Load(ctx)
	if snap != nil && snap.Organization != org {
		log.WithFields(logrus.Fields{
			"checkpoint_org": snap.Organization,
			"org":            org,
		}).Warn("Checkpoint belongs to another organization, starting fresh")
		snap = nil
	}

	if snap != nil {
		resume, err := resumeDecision(cmd, p, snap)
		if err != nil {
			return nil, err
		}
		if resume {
			state := domain.NewScanState(org, snap.Floor)
			snap.RestoreInto(state)
			log.WithFields(logrus.Fields{
				"processed": len(snap.Processed),
				"since":     snap.Floor.Format(domain.DateLayout),
			}).Info("Resuming from checkpoint")
			return state, nil
		}
		if err := cp.Delete(ctx); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	since, _ := cmd.Flags().GetString("since")
	if since == "" && p.interactive() {
		var err error
		since, err = p.line("Scan contributions since (YYYY-MM-DD)", defaultFloor(now, cfg.ScanWindowDays).Format(domain.DateLayout))
		if err != nil {
			return nil, err
		}
	}
	floor, err := parseFloor(since, now, cfg.ScanWindowDays)
	if err != nil {
		return nil, err
	}
	return domain.NewScanState(org, floor), nil
}

func resumeDecision(cmd *cobra.Command, p *prompter, snap *checkpoint.Snapshot) (bool, error) {
	if resume, _ := cmd.Flags().GetBool("resume"); resume {
		return true, nil
	}
	if noResume, _ := cmd.Flags().GetBool("no-resume"); noResume {
		return false, nil
	}
	if !p.interactive() {
		return true, nil
	}
	fmt.Fprintf(p.out, "Found checkpoint for %s since %s with %d processed repositories (saved %s).\n",
		snap.Organization, snap.Floor.Format(domain.DateLayout), len(snap.Processed), snap.SavedAt.Local().Format(time.DateTime))
	return p.confirm("Resume from checkpoint?", true)
}

// parseFloor parses a YYYY-MM-DD floor date as UTC midnight. An empty value
// means windowDays before now.
func parseFloor(s string, now time.Time, windowDays int) (time.Time, error) {
	if s == "" {
		return defaultFloor(now, windowDays), nil
	}
	floor, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since date %q, use YYYY-MM-DD: %w", s, err)
	}
	if floor.After(now) {
		return time.Time{}, fmt.Errorf("--since date %s is in the future", s)
	}
	return floor, nil
}

func defaultFloor(now time.Time, windowDays int) time.Time {
	d := now.UTC().AddDate(0, 0, -windowDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// newCheckpointBackend opens the configured checkpoint store. The returned func
// releases it.
func newCheckpointBackend(cfg config.Config) (checkpoint.Backend, func(), error) {
	switch cfg.CheckpointBackend {
	case config.BackendRedis:
		b, err := checkpoint.NewRedisBackend(cfg.RedisURL, cfg.CheckpointKey)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case config.BackendSQLite:
		b, err := checkpoint.NewSQLiteBackend(cfg.SqlitePath, cfg.CheckpointKey)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	default:
		return checkpoint.NewFileBackend(cfg.CheckpointPath), func() {}, nil
	}
}
