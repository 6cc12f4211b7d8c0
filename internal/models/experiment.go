package models

import "time"

type Experiment struct {
	Key           string    `yaml:"exp_key" json:"exp_key"`
	Name          string    `yaml:"name" json:"name"`
	Description   string    `yaml:"description" json:"description"`
	URL           string    `yaml:"url" json:"url"`
	Port          int       `yaml:"port" json:"port"`
	RestartScript string    `yaml:"restart_script" json:"-"`
	IsCustom      bool      `yaml:"is_custom" json:"is_custom"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
}

// ActionRef is the opaque handle the activation gate hands to the runner.
type ActionRef struct {
	ExpKey string `json:"exp_key"`
	Script string `json:"script"`
	URL    string `json:"url"`
}
