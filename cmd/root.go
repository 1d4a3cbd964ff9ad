package cmd

import (
	"log"

	"github.com/applyflow/applyflow/internal/behavior"
	"github.com/applyflow/applyflow/internal/browser/cdp"
	"github.com/applyflow/applyflow/internal/profile"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "applyflow"
)

type Config struct {
	Profile  *profile.Profile `mapstructure:"profile"`
	Resumes  *ResumesConfig   `mapstructure:"resumes"`
	Behavior *behavior.Config `mapstructure:"behavior"`
	Browser  *cdp.Config      `mapstructure:"browser"`
	AI       *AIConfig        `mapstructure:"ai"`
	Session  *SessionConfig   `mapstructure:"session"`
	Jobs     []JobConfig      `mapstructure:"jobs"`
}

type ResumesConfig struct {
	Dir        string `mapstructure:"dir"`
	HistoryDir string `mapstructure:"history-dir"`
}

type SessionConfig struct {
	JournalDir string `mapstructure:"journal-dir"`
}

type JobConfig struct {
	ID             string   `mapstructure:"id" json:"id"`
	Title          string   `mapstructure:"title" json:"title"`
	Company        string   `mapstructure:"company" json:"company"`
	Description    string   `mapstructure:"description" json:"description"`
	URL            string   `mapstructure:"url" json:"url"`
	RequiredSkills []string `mapstructure:"required-skills" json:"required_skills"`
}

type AIConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "applyflow fills and submits job application forms autonomously",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is applyflow.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for run command now. If there is no config, we can skip initialization
	if runCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
