package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPollInterval      = 1500 * time.Millisecond
	DefaultBatchSize         = 200
	DefaultFetchTimeout      = 10 * time.Second
	DefaultTwitterBaseURL    = "https://api.twitter.com/1.1"
	DefaultTwitterTokenURL   = "https://api.twitter.com/oauth2/token"
	DefaultRecipientsRefresh = time.Minute
	DefaultMessagesPerSecond = 25
	DefaultWebhookTimeout    = 10 * time.Second
	DefaultGeminiModel       = "gemini-2.5-flash"
	DefaultGeminiTimeout     = 15 * time.Second
	MaxBatchSize             = 200
)

// ErrInvalid оборачивает все ошибки конфигурации. Такие ошибки фатальны и возвращаются до запуска цикла.
var ErrInvalid = errors.New("invalid configuration")

type (
	// Root объединяет все конфигурационные блоки.
	Root struct {
		Watcher  Watcher  `yaml:"watcher"`
		Policy   Policy   `yaml:"policy"`
		Twitter  Twitter  `yaml:"twitter"`
		Telegram Telegram `yaml:"telegram"`
		Webhook  Webhook  `yaml:"webhook"`
		Archive  Archive  `yaml:"archive"`
		Gemini   Gemini   `yaml:"gemini"`
		Metrics  Metrics  `yaml:"metrics"`
		Log      Log      `yaml:"log"`
	}

	// Watcher описывает параметры цикла опроса.
	Watcher struct {
		ListID          string        `yaml:"list_id"`
		PollInterval    time.Duration `yaml:"poll_interval"`
		BatchSize       int           `yaml:"batch_size"`
		FetchTimeout    time.Duration `yaml:"fetch_timeout"`
		ExcludeRetweets *bool         `yaml:"exclude_retweets"` // nil - по умолчанию true
	}

	// Policy - ключевые запросы и исключённые пользователи. Не меняется за время жизни процесса.
	Policy struct {
		Queries       []string `yaml:"queries"`
		ExcludedUsers []string `yaml:"excluded_users"`
	}

	// Twitter содержит адреса API; ключи читаются из окружения.
	Twitter struct {
		BaseURL  string `yaml:"base_url"`
		TokenURL string `yaml:"token_url"`
	}

	// Telegram настраивает отправку уведомлений в чаты.
	Telegram struct {
		Enabled           bool          `yaml:"enabled"`
		ChatIDs           []string      `yaml:"chat_ids"`
		AutoSubscribe     bool          `yaml:"auto_subscribe"`
		StatePath         string        `yaml:"state_path"`
		RecipientsRefresh time.Duration `yaml:"recipients_refresh"`
		MessagesPerSecond float64       `yaml:"messages_per_second"`
	}

	// Webhook настраивает HTTP-доставку совпавших постов.
	Webhook struct {
		URL                string        `yaml:"url"`
		Timeout            time.Duration `yaml:"timeout"`
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	}

	// Archive - путь к SQLite-архиву отправленных уведомлений. Пусто - архив выключен.
	Archive struct {
		Path string `yaml:"path"`
	}

	// Gemini включает короткую аннотацию поста в сообщении Telegram.
	Gemini struct {
		Enabled  bool          `yaml:"enabled"`
		Model    string        `yaml:"model"`
		Language string        `yaml:"language"`
		Timeout  time.Duration `yaml:"timeout"`
	}

	// Metrics - адрес HTTP-эндпоинта /metrics. Пусто - эндпоинт не поднимается.
	Metrics struct {
		Listen string `yaml:"listen"`
	}

	// Log настраивает zap-логгер.
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	}
)

// LoadRoot читает основной файл конфигурации, подставляет значения по умолчанию и валидирует его.
func LoadRoot(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("%w: read config: %v", ErrInvalid, err)
	}
	return Parse(data)
}

// Parse разбирает YAML-конфигурацию из памяти.
func Parse(data []byte) (Root, error) {
	var cfg Root
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, fmt.Errorf("%w: unmarshal config: %v", ErrInvalid, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Root{}, err
	}
	return cfg, nil
}

// ApplyDefaults заполняет незаданные поля значениями по умолчанию.
func (r *Root) ApplyDefaults() {
	if r.Watcher.PollInterval <= 0 {
		r.Watcher.PollInterval = DefaultPollInterval
	}
	if r.Watcher.BatchSize <= 0 {
		r.Watcher.BatchSize = DefaultBatchSize
	}
	if r.Watcher.FetchTimeout <= 0 {
		r.Watcher.FetchTimeout = DefaultFetchTimeout
	}
	if r.Watcher.ExcludeRetweets == nil {
		exclude := true
		r.Watcher.ExcludeRetweets = &exclude
	}
	if r.Twitter.BaseURL == "" {
		r.Twitter.BaseURL = DefaultTwitterBaseURL
	}
	if r.Twitter.TokenURL == "" {
		r.Twitter.TokenURL = DefaultTwitterTokenURL
	}
	if r.Telegram.StatePath == "" {
		r.Telegram.StatePath = "state/state.json"
	}
	if r.Telegram.RecipientsRefresh <= 0 {
		r.Telegram.RecipientsRefresh = DefaultRecipientsRefresh
	}
	if r.Telegram.MessagesPerSecond <= 0 {
		r.Telegram.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if r.Webhook.Timeout <= 0 {
		r.Webhook.Timeout = DefaultWebhookTimeout
	}
	if r.Gemini.Model == "" {
		r.Gemini.Model = DefaultGeminiModel
	}
	if r.Gemini.Language == "" {
		r.Gemini.Language = "English"
	}
	if r.Gemini.Timeout <= 0 {
		r.Gemini.Timeout = DefaultGeminiTimeout
	}
	if r.Log.Level == "" {
		r.Log.Level = "info"
	}
}

// Validate проверяет обязательные поля. Нормализация запросов проверяется отдельно в filter.New.
func (r Root) Validate() error {
	var problems []string

	if strings.TrimSpace(r.Watcher.ListID) == "" {
		problems = append(problems, "watcher.list_id is required")
	}
	if r.Watcher.BatchSize > MaxBatchSize {
		problems = append(problems, fmt.Sprintf("watcher.batch_size must be <= %d", MaxBatchSize))
	}
	if len(r.Policy.Queries) == 0 {
		problems = append(problems, "policy.queries must not be empty")
	}
	for i, u := range r.Policy.ExcludedUsers {
		if strings.TrimSpace(u) == "" {
			problems = append(problems, fmt.Sprintf("policy.excluded_users[%d] is empty", i))
		}
	}
	if r.Telegram.Enabled && !r.Telegram.AutoSubscribe && len(r.Telegram.ChatIDs) == 0 {
		problems = append(problems, "telegram.chat_ids is required when auto_subscribe is disabled")
	}
	if r.Gemini.Enabled && !r.Telegram.Enabled {
		problems = append(problems, "gemini annotations require telegram.enabled")
	}
	if !r.Telegram.Enabled && r.Webhook.URL == "" && r.Archive.Path == "" {
		problems = append(problems, "no notification sink configured (telegram, webhook or archive)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ExcludeRetweetsEnabled возвращает итоговое значение exclude_retweets.
func (w Watcher) ExcludeRetweetsEnabled() bool {
	return w.ExcludeRetweets == nil || *w.ExcludeRetweets
}
