package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/tomd/internal/app"
)

var errUsage = errors.New("usage")

// flags holds the raw command-line values before they become an app.Config.
type flags struct {
	browser     bool
	selector    string
	rules       string
	enhance     bool
	lang        string
	output      string
	outputPDF   string
	configPath  string
	envFiles    []string
	timeout     time.Duration
	deadline    time.Duration
	concurrency int
	verbose     bool

	llmBase      string
	llmModel     string
	llmMaxTokens int

	blocked    []int
	minLength  int
	browserBin string
	noSandbox  bool
	insecure   bool

	cacheDir    string
	cacheMaxAge time.Duration
	cacheClear  bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "tomd <file-or-url>...",
		Short: "Convert documents and web pages to Markdown",
		Long: `tomd converts local HTML, PDF, DOCX, TXT and Markdown files, and web pages
fetched over HTTP(S), into Markdown.

Web pages are fetched with a plain HTTP request first; blocked or nearly
empty responses are retried once in a headless browser. The main content is
picked by --selector, then by a per-domain rule file, then by a heuristic.

With --enhance the result is rewritten by an OpenAI-compatible model
(OPENAI_API_KEY, OPENAI_API_BASE, LLM_MODEL), optionally translated with --lang.

Examples:
  tomd report.pdf -o report.md
  tomd https://example.com/post --selector "article.post"
  tomd a.docx b.html https://example.com -o out/`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Help()
				return fmt.Errorf("%w: at least one file or URL is required", errUsage)
			}
			cfg, err := buildConfig(f, args)
			if err != nil {
				return err
			}
			if err := app.ValidateConfig(cfg); err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			defer a.Close()
			return a.Run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to a YAML or JSON config file")
	pf.StringSliceVar(&f.envFiles, "env", []string{".env"}, "Dotenv files to load (existing environment wins)")
	pf.DurationVar(&f.timeout, "timeout", 0, "Timeout for each fetch, render or model call, e.g. 30s (default 30s)")
	pf.DurationVar(&f.deadline, "deadline", 0, "Overall limit for one conversion, e.g. 5m (default none)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose logging")
	pf.StringVar(&f.llmBase, "llm.base", "", "OpenAI-compatible base URL (OPENAI_API_BASE)")
	pf.StringVar(&f.llmModel, "llm.model", "", "Model name (LLM_MODEL, default gpt-3.5-turbo)")
	pf.IntVar(&f.llmMaxTokens, "llm.maxTokens", 0, "Token budget per enhancement request (LLM_MAX_TOKENS, default 8192)")
	pf.IntSliceVar(&f.blocked, "blocked-status", nil, "HTTP statuses that trigger the browser fallback (default 403,429,503)")
	pf.IntVar(&f.minLength, "min-length", 0, "HTML bodies shorter than this trigger the browser fallback (default 512)")
	pf.StringVar(&f.browserBin, "browser-bin", "", "Chrome or Chromium binary (TOMD_BROWSER_BIN)")
	pf.BoolVar(&f.noSandbox, "no-sandbox", false, "Run the browser without its sandbox (containers)")
	pf.BoolVar(&f.insecure, "insecure", false, "Skip TLS certificate verification for HTTP fetches")
	pf.StringVar(&f.cacheDir, "cache.dir", "", "Cache directory for fetched pages and model replies (TOMD_CACHE_DIR)")
	pf.DurationVar(&f.cacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this, e.g. 24h")
	pf.BoolVar(&f.cacheClear, "cache.clear", false, "Clear the cache directory before running")
	pf.StringVar(&f.rules, "rules", "", "YAML rule file mapping domains to selectors (replaces rule.yml)")
	pf.BoolVar(&f.browser, "browser", false, "Fetch URLs with the headless browser directly")
	pf.StringVar(&f.selector, "selector", "", "CSS selector for the main content")
	pf.BoolVar(&f.enhance, "enhance", false, "Rewrite the result through the language model")
	pf.StringVar(&f.lang, "lang", "", "Enhancement target language, e.g. en or fi")

	fl := root.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "Output file, or directory for several inputs (default stdout)")
	fl.StringVar(&f.outputPDF, "output-pdf", "", "Also render the Markdown to this PDF file")
	fl.IntVar(&f.concurrency, "concurrency", 0, "Parallel conversions for several inputs (default 4)")

	root.AddCommand(newMCPCmd(f), newVersionCmd())
	return root
}

// buildConfig applies flags, then the config file, then the environment.
// Each layer only fills what the previous ones left unset.
func buildConfig(f *flags, args []string) (app.Config, error) {
	if f.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := app.LoadEnvFiles(f.envFiles...); err != nil {
		return app.Config{}, err
	}
	cfg := app.Config{
		Inputs:           args,
		OutputPath:       f.output,
		OutputPDFPath:    f.outputPDF,
		UseBrowser:       f.browser,
		ContentSelector:  f.selector,
		RuleFile:         f.rules,
		Enhance:          f.enhance,
		Language:         strings.TrimSpace(f.lang),
		LLMBaseURL:       f.llmBase,
		LLMModel:         f.llmModel,
		LLMMaxTokens:     f.llmMaxTokens,
		Timeout:          f.timeout,
		Deadline:         f.deadline,
		BlockedStatuses:  f.blocked,
		MinContentLength: f.minLength,
		BrowserBin:       f.browserBin,
		BrowserNoSandbox: f.noSandbox,
		InsecureTLS:      f.insecure,
		Concurrency:      f.concurrency,
		CacheDir:         f.cacheDir,
		CacheMaxAge:      f.cacheMaxAge,
		CacheClear:       f.cacheClear,
		Verbose:          f.verbose,
	}
	if f.configPath != "" {
		fc, err := app.LoadConfigFile(f.configPath)
		if err != nil {
			return app.Config{}, fmt.Errorf("%w: config %s: %w", errUsage, f.configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvToConfig(&cfg)
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tomd version %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		},
	}
}
