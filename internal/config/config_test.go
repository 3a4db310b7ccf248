package config

import "testing"

func validConfig() *Config {
	return &Config{
		ServerPort:             ":8080",
		WorkerPoolSize:         32,
		ReconcilerAlertThresh:  0.95,
		CacheRefreshAheadRatio: 0.2,
		RLGlobalQPS:            5000,
		RLIPQPS:                20,
		RLUserQPS:              1,
		LogLevel:               "info",
		LogFormat:              "json",
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected a well-formed config to validate, got %v", err)
	}
}

func TestValidate_RejectsMissingServerPort(t *testing.T) {
	c := validConfig()
	c.ServerPort = ""
	if err := c.Validate(); err == nil {
		t.Error("expected an error for an empty ServerPort")
	}
}

func TestValidate_RejectsNonPositiveWorkerPoolSize(t *testing.T) {
	c := validConfig()
	c.WorkerPoolSize = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error for WorkerPoolSize <= 0")
	}
}

func TestValidate_RejectsOutOfRangeAlertThreshold(t *testing.T) {
	c := validConfig()
	c.ReconcilerAlertThresh = 1.5
	if err := c.Validate(); err == nil {
		t.Error("expected an error for ReconcilerAlertThresh outside [0,1]")
	}
}

func TestValidate_RejectsOutOfRangeRefreshAheadRatio(t *testing.T) {
	c := validConfig()
	c.CacheRefreshAheadRatio = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error for CacheRefreshAheadRatio outside (0,1)")
	}
	c.CacheRefreshAheadRatio = 1
	if err := c.Validate(); err == nil {
		t.Error("expected an error for CacheRefreshAheadRatio == 1")
	}
}

func TestValidate_RejectsNonPositiveQPS(t *testing.T) {
	c := validConfig()
	c.RLUserQPS = 0
	if err := c.Validate(); err == nil {
		t.Error("expected an error for a non-positive rate limit QPS")
	}
}

func TestValidate_RejectsUnknownLogLevel(t *testing.T) {
	c := validConfig()
	c.LogLevel = "verbose"
	if err := c.Validate(); err == nil {
		t.Error("expected an error for an unrecognised log level")
	}
}

func TestValidate_RejectsUnknownLogFormat(t *testing.T) {
	c := validConfig()
	c.LogFormat = "xml"
	if err := c.Validate(); err == nil {
		t.Error("expected an error for an unrecognised log format")
	}
}
