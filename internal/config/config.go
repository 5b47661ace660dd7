package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"morphocv/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Paths     PathConfig
	GPC       GPCConfig
	HMC       HMCConfig
	Run       RunConfig
	Reporting ReportConfig
	Database  DatabaseConfig
	Server    ServerConfig
}

// PathConfig holds file system locations
type PathConfig struct {
	ResultDir          string `validate:"required"`
	WorkDir            string `validate:"required"`
	ReportDir          string `validate:"required"`
	ExperimentsFile    string `validate:"required"`
	ReshuffleIndexFile string
	BootstrapIndexFile string
}

// GPCConfig configures the external GP classification tool
type GPCConfig struct {
	Executable string `validate:"required"`
	MaxRetries int    `validate:"gte=1,lte=100"`
}

// HMCConfig configures the external HMC sampler
type HMCConfig struct {
	BinDir      string
	HiddenUnits int `validate:"gte=1"`
	ARDLevel    int `validate:"gte=0,lte=2"`
	Iterations  int `validate:"gte=4"`
}

// RunConfig holds evaluation settings shared by all classifiers
type RunConfig struct {
	MaxThreads     int     `validate:"gte=1"`
	ProbTolerance  float64 `validate:"gt=0,lt=1"`
	Normalise      bool
	ConsumeResults bool
	ClassLabels    []string
}

// ReportConfig holds comparison reporting settings
type ReportConfig struct {
	// MaxSignificance caps p-values for display and storage only
	MaxSignificance float64 `validate:"gt=0,lte=1"`
}

// DatabaseConfig holds the optional metric sink connection. An empty URL
// disables the sink.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds report browser settings
type ServerConfig struct {
	Addr    string `validate:"required"`
	GinMode string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Paths:     *loadPathConfig(),
		GPC:       *loadGPCConfig(),
		HMC:       *loadHMCConfig(),
		Run:       *loadRunConfig(),
		Reporting: ReportConfig{MaxSignificance: getEnvFloatOrDefault("MAX_SIGNIFICANCE", 0.999)},
		Database:  DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Server:    *loadServerConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		ResultDir:          getEnvOrDefault("RESULT_DIR", "./results"),
		WorkDir:            getEnvOrDefault("WORK_DIR", "./work"),
		ReportDir:          getEnvOrDefault("REPORT_DIR", "./reports"),
		ExperimentsFile:    getEnvOrDefault("EXPERIMENTS_FILE", "./experiments.yaml"),
		ReshuffleIndexFile: getEnvOrDefault("RESHUFFLE_INDEX_FILE", "./rshfl_idx.txt"),
		BootstrapIndexFile: getEnvOrDefault("BOOTSTRAP_INDEX_FILE", "./rsmp_idx.txt"),
	}
}

func loadGPCConfig() *GPCConfig {
	return &GPCConfig{
		Executable: getEnvOrDefault("GPC_EXECUTABLE", "gpc-ard"),
		MaxRetries: getEnvIntOrDefault("GPC_MAX_RETRIES", 5),
	}
}

func loadHMCConfig() *HMCConfig {
	return &HMCConfig{
		BinDir:      getEnvOrDefault("HMC_BIN_DIR", ""),
		HiddenUnits: getEnvIntOrDefault("HMC_HIDDEN_UNITS", 10),
		ARDLevel:    getEnvIntOrDefault("HMC_ARD_LEVEL", 0),
		Iterations:  getEnvIntOrDefault("HMC_ITERATIONS", 2000),
	}
}

func loadRunConfig() *RunConfig {
	return &RunConfig{
		MaxThreads:     getEnvIntOrDefault("MAX_THREADS", runtime.NumCPU()),
		ProbTolerance:  getEnvFloatOrDefault("PROB_TOLERANCE", 1e-6),
		Normalise:      getEnvBoolOrDefault("NORMALISE", true),
		ConsumeResults: getEnvBoolOrDefault("CONSUME_RESULTS", false),
		ClassLabels:    getEnvListOrDefault("CLASS_LABELS", nil),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:    getEnvOrDefault("REPORT_ADDR", ":8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

var validate = validator.New()

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		return errors.ConfigInvalid(describeValidation(err))
	}
	return nil
}

// describeValidation flattens validator errors into one readable line
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fe.Namespace()+" must satisfy "+fe.Tag()+"="+fe.Param())
		} else {
			parts = append(parts, fe.Namespace()+" is "+fe.Tag())
		}
	}
	return strings.Join(parts, "; ")
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
