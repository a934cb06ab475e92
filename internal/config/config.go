package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		APIKey         string   `yaml:"apiKey"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Ntech struct {
		BaseURL        string `yaml:"baseURL"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
	} `yaml:"ntech"`

	MQTT struct {
		BrokerURL string `yaml:"brokerURL"`
		Topic     string `yaml:"topic"`
	} `yaml:"mqtt"`

	Access struct {
		SimilarityThreshold float64 `yaml:"similarityThreshold"`
		MaxCandidates       int     `yaml:"maxCandidates"`
		LivenessThreshold   float64 `yaml:"livenessThreshold"`
		UnlockDurationMS    int64   `yaml:"unlockDurationMs"`
	} `yaml:"access"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
}

// Load baca file config.yaml, lalu override dari environment
func Load(path string) (*Config, error) {
	// .env is optional; ignore when missing
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 4000
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Ntech.TimeoutSeconds == 0 {
		c.Ntech.TimeoutSeconds = 30
	}
	if c.Access.SimilarityThreshold == 0 {
		c.Access.SimilarityThreshold = 0.7
	}
	if c.Access.MaxCandidates == 0 {
		c.Access.MaxCandidates = 10
	}
	if c.Access.LivenessThreshold == 0 {
		c.Access.LivenessThreshold = 0.7
	}
	if c.Access.UnlockDurationMS == 0 {
		c.Access.UnlockDurationMS = 5000
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "access/door"
	}
	if c.Minio.BucketName == "" {
		c.Minio.BucketName = "facial-validation-photos"
	}
}

// applyEnv lets secrets come from the environment instead of the yaml file
func (c *Config) applyEnv() {
	if v := os.Getenv("NTECH_API_URL"); v != "" {
		c.Ntech.BaseURL = v
	}
	if v := os.Getenv("NTECH_TOKEN"); v != "" {
		c.Ntech.Token = v
	}
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		c.MQTT.BrokerURL = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN for lib/pq
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}
