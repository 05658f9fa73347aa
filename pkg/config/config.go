package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Arxiv    ArxivConfig
	LLM      LLMConfig
	Email    EmailConfig
	Schedule ScheduleConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

type SQLiteConfig struct {
	Path string
}

type ArxivConfig struct {
	Keywords   []string
	Categories []string
	MaxResults int
	PageSize   int
	PageDelay  int
	BaseURL    string
}

type LLMConfig struct {
	Provider   string
	Model      string
	APIKey     string
	MaxTokens  int
	TimeoutSec int
	BatchSize  int
	BatchDelay int
}

type EmailConfig struct {
	SMTPServer    string
	SMTPPort      int
	Username      string
	Password      string
	Sender        string
	Recipients    []string
	SubjectPrefix string
	MinRelevance  int
}

type ScheduleConfig struct {
	Collection string
	Processing string
	Digest     string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/papermon")

	viper.SetEnvPrefix("PAPERMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Provider SDK conventions win when no explicit key is configured.
	if config.LLM.APIKey == "" {
		switch config.LLM.Provider {
		case "anthropic":
			config.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	return &config, nil
}

// Incomplete reports which required email settings are missing. An empty
// slice means the digest sender is fully configured.
func (e EmailConfig) Incomplete() []string {
	var missing []string
	if e.SMTPServer == "" {
		missing = append(missing, "smtp_server")
	}
	if e.Username == "" {
		missing = append(missing, "username")
	}
	if e.Password == "" {
		missing = append(missing, "password")
	}
	if e.Sender == "" {
		missing = append(missing, "sender")
	}
	if len(e.Recipients) == 0 {
		missing = append(missing, "recipients")
	}
	return missing
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)

	viper.SetDefault("sqlite.path", "./data/papers.db")

	viper.SetDefault("arxiv.keywords", []string{
		"red teaming",
		"adversarial attack",
		"jailbreak",
		"prompt injection",
		"model extraction",
		"data poisoning",
		"backdoor attack",
		"privacy attack",
		"model stealing",
		"LLM security",
		"AI security",
		"AI safety",
		"AI alignment",
		"reward hacking",
	})
	viper.SetDefault("arxiv.categories", []string{"cs.AI", "cs.CL", "cs.CR", "cs.LG"})
	viper.SetDefault("arxiv.maxResults", 100)
	viper.SetDefault("arxiv.pageSize", 100)
	viper.SetDefault("arxiv.pageDelay", 3)
	viper.SetDefault("arxiv.baseURL", "http://export.arxiv.org/api/query")

	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.model", "claude-3-haiku-20240307")
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.batchSize", 5)
	viper.SetDefault("llm.batchDelay", 2)

	viper.SetDefault("email.smtpPort", 587)
	viper.SetDefault("email.subjectPrefix", "AI Red Teaming Research Digest -")
	viper.SetDefault("email.minRelevance", 5)

	viper.SetDefault("schedule.collection", "02:00")
	viper.SetDefault("schedule.processing", "03:00")
	viper.SetDefault("schedule.digest", "08:00")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
