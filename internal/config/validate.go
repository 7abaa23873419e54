package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Binary == "" {
		return errors.New("transcription.binary must be set")
	}
	if c.Transcription.Model == "" {
		return errors.New("transcription.model must be set")
	}
	if c.Transcription.ConcurrencyLimit < 1 {
		return errors.New("transcription.concurrency_limit must be at least 1")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	if c.Translation.BaseURL == "" {
		return errors.New("translation.base_url must be set")
	}
	if c.Translation.Model == "" {
		return errors.New("translation.model must be set")
	}
	if c.Translation.ConcurrencyLimit < 1 {
		return errors.New("translation.concurrency_limit must be at least 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ChunkSizeSeconds <= 0 {
		return errors.New("pipeline.chunk_size_seconds must be positive")
	}
	if c.Pipeline.Workers < 1 {
		return errors.New("pipeline.workers must be at least 1")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return errors.New("pipeline.stage_timeout must be positive")
	}
	if c.Pipeline.TaskTimeout < c.Pipeline.StageTimeout {
		return fmt.Errorf("pipeline.task_timeout (%d) must not be smaller than pipeline.stage_timeout (%d)",
			c.Pipeline.TaskTimeout, c.Pipeline.StageTimeout)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return errors.New("pipeline.max_attempts must be at least 1")
	}
	if c.Pipeline.SourceLanguage == "" || c.Pipeline.TargetLanguage == "" {
		return errors.New("pipeline.source_language and pipeline.target_language must be set")
	}
	if c.Pipeline.SourceLanguage == c.Pipeline.TargetLanguage {
		return errors.New("pipeline.source_language and pipeline.target_language must differ")
	}
	return nil
}

func (c *Config) validateReview() error {
	if c.Review.DifficultyThreshold < 0 || c.Review.DifficultyThreshold > 1 {
		return errors.New("review.difficulty_threshold must be between 0 and 1")
	}
	if c.Review.EaseFloor < 1.0 {
		return errors.New("review.ease_floor must be at least 1.0")
	}
	if c.Review.EaseCeiling < c.Review.EaseFloor {
		return errors.New("review.ease_ceiling must not be below review.ease_floor")
	}
	if c.Review.MaxIntervalDays < 1 {
		return errors.New("review.max_interval_days must be at least 1")
	}
	return nil
}
