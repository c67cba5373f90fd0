package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/prelaunch-audit/internal/audit"
	"github.com/JakeFAU/prelaunch-audit/internal/report/excel"
	"github.com/JakeFAU/prelaunch-audit/internal/sheetconfig"
)

// errEmptyRun is returned when not a single page could be fetched.
var errEmptyRun = errors.New("no pages could be fetched")

type auditOptions struct {
	url      string
	urls     []string
	clinic   string
	phone    string
	sheet    string
	out      string
	username string
	password string
}

// newAuditCmd creates the 'audit' subcommand, which runs one audit in the foreground
// and writes the report to disk.
func newAuditCmd() *cobra.Command {
	var opts auditOptions
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audits one site and writes the Excel report",
		Long: `Crawls the site from --url (or checks exactly the pages given with --urls),
runs every enabled check and writes {clinic}チェック結果.xlsx to --out.
Site data can come from the checklist workbook given with --sheet; flags win.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "", "start URL to crawl")
	flags.StringSliceVar(&opts.urls, "urls", nil, "explicit page URLs to check instead of crawling")
	flags.StringVar(&opts.clinic, "clinic", "", "clinic name used in the report file name")
	flags.StringVar(&opts.phone, "phone", "", "reference phone number")
	flags.StringVar(&opts.sheet, "sheet", "", "checklist workbook to import site data from")
	flags.StringVar(&opts.out, "out", "", "report output directory (default report.output_dir)")
	flags.StringVar(&opts.username, "username", "", "Basic-Auth user for a protected staging site")
	flags.StringVar(&opts.password, "password", "", "Basic-Auth password for a protected staging site")
	return cmd
}

func runAudit(ctx context.Context, stdout io.Writer, opts auditOptions) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := appInstance.Close(context.WithoutCancel(ctx)); cerr != nil {
			appInstance.Logger().Warn("close failed", zap.Error(cerr))
		}
	}()

	request, err := buildRequest(appInstance, opts)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	logger.Info("audit started",
		zap.String("start_url", request.StartURL),
		zap.Int("urls", len(request.URLs)),
		zap.String("clinic", request.Profile.ClinicName),
	)

	result, err := appInstance.Execute(ctx, request)
	if err != nil {
		return fmt.Errorf("run audit: %w", err)
	}
	if result.Outcome.Empty {
		return errEmptyRun
	}

	dir := opts.out
	if dir == "" {
		dir = appInstance.Config().Report.OutputDir
	}
	path, err := writeReport(dir, request.Profile.ClinicName, result.Report)
	if err != nil {
		return err
	}
	s := result.Outcome.Summary
	_, err = fmt.Fprintf(stdout, "checked %d pages: %d ok, %d warning, %d error\nreport: %s\n",
		len(result.Outcome.CheckedURLs), s.OK, s.Warning, s.Error, path)
	return err
}

// buildRequest layers the configured profile, the imported workbook and the flags, in
// that order of increasing priority.
func buildRequest(appInstance App, opts auditOptions) (audit.Request, error) {
	cfg := appInstance.Config()
	profile := cfg.Profile.Clone()
	if opts.sheet != "" {
		imported, err := sheetconfig.ImportFile(opts.sheet)
		if err != nil {
			return audit.Request{}, fmt.Errorf("import sheet: %w", err)
		}
		profile = cfg.WithProfile(imported).Profile
	}
	if opts.url != "" {
		profile.StartURL = strings.TrimSpace(opts.url)
	}
	if opts.clinic != "" {
		profile.ClinicName = opts.clinic
	}
	if opts.phone != "" {
		profile.Phone = opts.phone
	}

	request := audit.Request{StartURL: profile.StartURL, Profile: profile}
	for _, raw := range opts.urls {
		if raw = strings.TrimSpace(raw); raw != "" {
			request.URLs = append(request.URLs, raw)
		}
	}
	if request.StartURL == "" && len(request.URLs) == 0 {
		return audit.Request{}, errors.New("one of --url, --urls or a --sheet with a URL is required")
	}
	// Flags override the configured credential so crawl, fetch and link checks share one.
	request.Auth = cfg.SiteAuth()
	if auth := (&audit.BasicAuth{Username: opts.username, Password: opts.password}); auth.Usable() {
		request.Auth = auth
	}
	return request, nil
}

func writeReport(dir, clinic string, report []byte) (string, error) {
	if len(report) == 0 {
		return "", errors.New("run produced no report")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, excel.FileName(clinic))
	if err := os.WriteFile(path, report, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
