package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Secrets are the three required credentials, read from the environment only.
type Secrets struct {
	PracticumToken string `env:"PRACTICUM_TOKEN" env-description:"homework API OAuth token"`
	BotToken       string `env:"BOT_TOKEN" env-description:"Telegram bot token"`
	ChatID         string `env:"CHAT_ID" env-description:"Telegram chat that receives status messages"`
}

// LoadSecrets reads Secrets from the process environment.
//
// Each envFile that exists is loaded first with godotenv; variables already set
// in the environment win over the file.
func LoadSecrets(envFiles ...string) (Secrets, error) {
	for _, f := range envFiles {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Secrets{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var s Secrets
	if err := cleanenv.ReadEnv(&s); err != nil {
		return Secrets{}, err
	}
	s.PracticumToken = strings.TrimSpace(s.PracticumToken)
	s.BotToken = strings.TrimSpace(s.BotToken)
	s.ChatID = strings.TrimSpace(s.ChatID)
	return s, nil
}

// CheckTokens reports whether all three required values are present.
func CheckTokens(practicumToken, botToken, chatID string) bool {
	for _, v := range []string{practicumToken, botToken, chatID} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Missing lists the environment variable names that are empty.
func (s Secrets) Missing() []string {
	var out []string
	if strings.TrimSpace(s.PracticumToken) == "" {
		out = append(out, "PRACTICUM_TOKEN")
	}
	if strings.TrimSpace(s.BotToken) == "" {
		out = append(out, "BOT_TOKEN")
	}
	if strings.TrimSpace(s.ChatID) == "" {
		out = append(out, "CHAT_ID")
	}
	return out
}

// EnvUsage describes the expected environment, for -help output.
func EnvUsage() string {
	var s Secrets
	u, err := cleanenv.GetDescription(&s, nil)
	if err != nil {
		return ""
	}
	return u
}
