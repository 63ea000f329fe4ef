package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCheckTokens(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		api, bot, chat string
		want           bool
	}{
		{name: "all set", api: "a", bot: "b", chat: "1", want: true},
		{name: "no api", bot: "b", chat: "1"},
		{name: "no bot", api: "a", chat: "1"},
		{name: "no chat", api: "a", bot: "b"},
		{name: "blank", api: " ", bot: "b", chat: "1"},
		{name: "none"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CheckTokens(tt.api, tt.bot, tt.chat); got != tt.want {
				t.Fatalf("CheckTokens = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSecretsMissing(t *testing.T) {
	s := Secrets{BotToken: "b"}
	got := s.Missing()
	if len(got) != 2 || got[0] != "PRACTICUM_TOKEN" || got[1] != "CHAT_ID" {
		t.Fatalf("Missing = %v", got)
	}
}

func TestLoadSecretsFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("PRACTICUM_TOKEN=from-file\nBOT_TOKEN=bot-file\nCHAT_ID=42\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Environment wins over the file.
	t.Setenv("BOT_TOKEN", "bot-env")
	t.Setenv("PRACTICUM_TOKEN", "")
	_ = os.Unsetenv("PRACTICUM_TOKEN")
	t.Setenv("CHAT_ID", "")
	_ = os.Unsetenv("CHAT_ID")

	s, err := LoadSecrets(filepath.Join(dir, "missing.env"), envFile)
	if err != nil {
		t.Fatalf("LoadSecrets: %v", err)
	}
	if s.PracticumToken != "from-file" || s.BotToken != "bot-env" || s.ChatID != "42" {
		t.Fatalf("unexpected secrets: %+v", s)
	}
}

func TestBuildSettingsDefaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	st, err := BuildSettings(nil, Secrets{PracticumToken: "p", BotToken: "b", ChatID: "-100123"}, now)
	if err != nil {
		t.Fatalf("BuildSettings: %v", err)
	}
	if st.Endpoint != DefaultEndpoint {
		t.Fatalf("Endpoint = %q", st.Endpoint)
	}
	if st.RetryPeriod != DefaultRetryPeriod || st.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("durations = %v/%v", st.RetryPeriod, st.RequestTimeout)
	}
	if st.ChatID != -100123 {
		t.Fatalf("ChatID = %d", st.ChatID)
	}
	if st.FromDate != now.Unix() {
		t.Fatalf("FromDate = %d", st.FromDate)
	}
}

func TestParseRetryPeriod(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", DefaultRetryPeriod, false},
		{"90s", 90 * time.Second, false},
		{"1h", time.Hour, false},
		{"1.5s", 0, true},
		{"250ms", 0, true},
		{"-1m", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRetryPeriod(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("%q: got %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestBuildSettingsRejectsBadValues(t *testing.T) {
	sec := Secrets{PracticumToken: "p", BotToken: "b", ChatID: "1"}
	if _, err := BuildSettings(&Config{Practicum: PracticumConfig{RetryPeriod: "soon"}}, sec, time.Now()); err == nil {
		t.Fatal("expected error for bad retry_period")
	}
	if _, err := BuildSettings(&Config{Practicum: PracticumConfig{RetryPeriod: "2500ms"}}, sec, time.Now()); err == nil {
		t.Fatal("expected error for fractional retry_period")
	}
	sec.ChatID = "@channel"
	if _, err := BuildSettings(&Config{}, sec, time.Now()); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestParseYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
practicum:
  retry_period: 5m
  from_date: 1600000000
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./journal
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewConfigManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Practicum.RetryPeriod != "5m" || cfg.Practicum.FromDate != 1600000000 {
		t.Fatalf("practicum = %+v", cfg.Practicum)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"practicum":{"retry":"5m"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewConfigManager(path).Parse(); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestParseMissingFileIsEmpty(t *testing.T) {
	cfg, err := NewConfigManager(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected empty config")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Keep rewriting until the watcher is up and the change is seen.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-sub:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("level = %q", cfg.Logging.Level)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o600)
		case <-ctx.Done():
			t.Fatal("timed out waiting for config publish")
		}
	}
}
