package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/applyflow/applyflow/internal/ai"
	"github.com/applyflow/applyflow/internal/ai/gemini"
	"github.com/applyflow/applyflow/internal/behavior"
	"github.com/applyflow/applyflow/internal/browser/cdp"
	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/logger"
	"github.com/applyflow/applyflow/internal/recovery"
	"github.com/applyflow/applyflow/internal/resumes"
	"github.com/applyflow/applyflow/internal/secrets"
	"github.com/applyflow/applyflow/internal/session"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"

	defaultStateDir = ".applyflow"
)

var prompt = promptui.Select{
	Label: "Proceed?",
	Items: []string{PromptYes, PromptNo},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the applyflow main command",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before applying to found jobs")
	runCmd.Flags().StringP("jobs-file", "f", "", "JSON file with jobs to apply to, in addition to the config")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting applyflow", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	if config == nil {
		logger.Fatal("config is required")
	}

	if config.Profile == nil {
		logger.Fatal("applicant profile is required under the profile section")
	}
	if err := config.Profile.Validate(); err != nil {
		logger.Fatal("validating the profile", zap.Error(err))
	}

	if config.Resumes == nil || config.Resumes.Dir == "" {
		logger.Fatal("resume directory is required under resumes.dir")
	}

	jobs, err := collectJobs(cmd, config)
	if err != nil {
		logger.Fatal("collecting jobs", zap.Error(err))
	}
	if len(jobs) == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs to apply to"))
		return
	}

	browserCfg := cdp.Config{}
	if config.Browser != nil {
		browserCfg = *config.Browser
	}
	driver, err := cdp.New(ctx, browserCfg)
	if err != nil {
		logger.Fatal("starting the browser", zap.Error(err))
	}
	defer driver.Close()

	behaviorCfg := behavior.Config{}
	if config.Behavior != nil {
		behaviorCfg = *config.Behavior
	}
	if behaviorCfg.StateDir == "" {
		behaviorCfg.StateDir = defaultStateDir
	}

	governor, err := behavior.New(behaviorCfg, behavior.NewStore(behaviorCfg.StateDir), driver, logger)
	if err != nil {
		logger.Fatal("loading behavior counters", zap.Error(err))
	}

	var answerer ai.Answerer
	var picker ai.ResumePicker
	if config.AI != nil && config.AI.Enabled {
		gem, err := newGeminiAnswerer(ctx, config, logger)
		if err != nil {
			logger.Fatal("building the gemini answerer", zap.Error(err))
		}
		answerer = gem
		picker = gem
	} else {
		logger.Info("remote AI disabled, deciding from patterns and defaults only")
	}

	historyDir := config.Resumes.HistoryDir
	if historyDir == "" {
		historyDir = defaultStateDir
	}
	library := resumes.NewLibrary(config.Resumes.Dir, logger)
	selector := resumes.NewSelector(library, picker, historyDir, logger)

	variants, err := library.Variants()
	if err != nil {
		logger.Fatal("scanning resume variants", zap.Error(err))
	}
	if len(variants) == 0 {
		logger.Fatal("no resume variants found", zap.String("dir", config.Resumes.Dir))
	}

	journalDir := defaultStateDir
	if config.Session != nil && config.Session.JournalDir != "" {
		journalDir = config.Session.JournalDir
	}
	journal := session.NewJournal(journalDir)

	runner := session.NewRunner(session.Deps{
		Driver:   driver,
		Forms:    cdp.NewFormReader(driver),
		Engine:   engine.New(config.Profile, answerer, logger),
		Recovery: recovery.New(driver, journal, logger),
		Governor: governor,
		Selector: selector,
		Journal:  journal,
		Logger:   logger,
	})

	logger.Info("ready to apply",
		zap.Int("jobs", len(jobs)),
		zap.Int("resume_variants", len(variants)),
		zap.Bool("remote_ai", answerer != nil),
	)

	if cmd.Flag("auto-approve").Value.String() == "false" {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if action != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	summary, err := runner.Run(ctx, jobs)
	if err != nil {
		logger.Warn("run interrupted", zap.Error(err))
	}

	state := governor.Snapshot()
	logger.Info("behavior counters",
		zap.Int("applied_today", state.DailyCount),
		zap.Int("applied_total", state.TotalCount),
		zap.Int("applied_this_session", governor.SessionCount()),
		zap.Int("detection_events", state.DetectionEvents),
	)

	if summary.Failed > 0 {
		logger.Warn("some applications failed, see the journal",
			zap.Int("failed", summary.Failed),
			zap.String("journal_dir", journalDir),
		)
	}
}

// collectJobs merges the config's jobs with the optional jobs file.
func collectJobs(cmd *cobra.Command, config *Config) ([]session.Job, error) {
	jobs := make([]session.Job, 0, len(config.Jobs))
	for _, jc := range config.Jobs {
		jobs = append(jobs, toJob(jc))
	}

	path := cmd.Flag("jobs-file").Value.String()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading jobs file: %w", err)
		}
		var fromFile []JobConfig
		if err := json.Unmarshal(data, &fromFile); err != nil {
			return nil, fmt.Errorf("parsing jobs file %q: %w", path, err)
		}
		for _, jc := range fromFile {
			jobs = append(jobs, toJob(jc))
		}
	}

	for i, job := range jobs {
		if job.URL == "" {
			return nil, fmt.Errorf("job %d (%s) has no url", i, job.ID)
		}
	}

	return jobs, nil
}

func toJob(jc JobConfig) session.Job {
	return session.Job{
		ID:             jc.ID,
		Title:          jc.Title,
		Company:        jc.Company,
		Description:    jc.Description,
		URL:            jc.URL,
		RequiredSkills: jc.RequiredSkills,
	}
}

func newGeminiAnswerer(ctx context.Context, config *Config, log *zap.Logger) (*gemini.Answerer, error) {
	cfg := config.AI

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}

	aiLogger := logger.WithCommonFields(log, "gemini", cfg.Gemini.Model)
	answerer := gemini.NewAnswerer(generator, config.Profile, aiLogger, cfg.Gemini.MaxLogLength)

	cacheName, err := generator.EnsureProfileCache(ctx, "default", app+"-profile", config.Profile.FormatForAI())
	if err != nil {
		aiLogger.Warn("profile caching unavailable, sending the profile with every prompt", zap.Error(err))
	} else {
		answerer.EnableProfileCache(cacheName)
	}

	return answerer, nil
}
