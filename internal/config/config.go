package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed algorithms.yaml
var algorithmsYAML []byte

type Config struct {
	Engine     EngineConfig
	Embedding  EmbeddingConfig
	Database   DatabaseConfig
	Roster     RosterConfig
	Web        WebConfig
	Algorithms AlgorithmsConfig
}

type EngineConfig struct {
	Algorithm   string        // active recognition algorithm (default facenet)
	Threshold   float64       // 0 means use the algorithm's default
	GraceWindow time.Duration // check-ins after this count as late (default 15m)
	Concurrency int           // parallel frames in batch processing (default 4)
}

type EmbeddingConfig struct {
	URL string // embedding service base URL, defaults to http://localhost:8000
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RosterConfig struct {
	// DatabaseURL is a MariaDB DSN for the student information system the
	// rosters are read from (e.g. sis:sis@tcp(mariadb:3306)/sis).
	DatabaseURL string
}

type WebConfig struct {
	Port int // HTTP listen port (default 8080)
}

type AlgorithmsConfig struct {
	Algorithms map[string]AlgorithmSettings `yaml:"algorithms"`
}

type AlgorithmSettings struct {
	Threshold float64 `yaml:"threshold"`
	Dim       int     `yaml:"dim"`
}

// Threshold returns the configured threshold for the algorithm, or 0 when
// the algorithm is not listed, leaving the adapter default in charge.
func (c *AlgorithmsConfig) Threshold(algorithmID string) float64 {
	return c.Algorithms[algorithmID].Threshold
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float. Returns the default for
// unset, empty, or unparsable values.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var algorithms AlgorithmsConfig
	if err := yaml.Unmarshal(algorithmsYAML, &algorithms); err != nil {
		// Embedded file, cannot fail in practice
		panic("failed to unmarshal embedded algorithms.yaml: " + err.Error())
	}

	return &Config{
		Engine: EngineConfig{
			Algorithm:   envString("ATTENDANCE_ALGORITHM", "facenet"),
			Threshold:   envFloat("ATTENDANCE_THRESHOLD", 0),
			GraceWindow: envDuration("ATTENDANCE_GRACE_WINDOW", 15*time.Minute),
			Concurrency: envInt("ATTENDANCE_CONCURRENCY", 4),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Roster: RosterConfig{
			DatabaseURL: os.Getenv("ROSTER_DATABASE_URL"),
		},
		Web: WebConfig{
			Port: envInt("PORT", 8080),
		},
		Algorithms: algorithms,
	}
}
