package config

import (
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranslation()
	c.normalizeLanguages()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []*string{
		&c.Paths.WorkDir,
		&c.Paths.LogDir,
		&c.Paths.IngestDir,
		&c.Paths.LexiconCSV,
	}
	for _, field := range fields {
		if strings.TrimSpace(*field) == "" {
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeTranslation() {
	c.Translation.APIKey = strings.TrimSpace(c.Translation.APIKey)
	if c.Translation.APIKey == "" {
		c.Translation.APIKey = strings.TrimSpace(os.Getenv("SUBLINGO_TRANSLATION_API_KEY"))
	}
	c.Translation.BaseURL = strings.TrimSpace(c.Translation.BaseURL)
	c.Translation.Model = strings.TrimSpace(c.Translation.Model)
}

func (c *Config) normalizeLanguages() {
	c.Pipeline.SourceLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.SourceLanguage))
	c.Pipeline.TargetLanguage = strings.ToLower(strings.TrimSpace(c.Pipeline.TargetLanguage))
}
