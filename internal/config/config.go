package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DetectorURL string
	CORSOrigins string
	LogLevel    string
	Environment string

	DataDir      string
	DeviceTag    string
	CameraDevice string
	CameraInput  string
	FrameRate    int
	AudioDevice  string
	AudioInput   string
	SampleRate   int
	ChunkMs      int

	BroadcastInterval time.Duration
	ReapInterval      time.Duration
	HeartbeatTimeout  time.Duration
	StopJoinTimeout   time.Duration

	DBEnabled  bool
	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	AMQPURL      string
	AMQPExchange string
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// DSNForLog renders the DSN without the password for logging.
func (c *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// FrameInterval is the nominal spacing between captured frames.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameRate <= 0 {
		return 33 * time.Millisecond
	}
	return time.Second / time.Duration(c.FrameRate)
}

func LoadConfig() *Config {
	// Load .env if present; otherwise fall back to the process env.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8081"),
		DetectorURL: getEnv("DETECTOR_URL", "http://localhost:9000"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		Environment: getEnv("ENVIRONMENT", "production"),

		DataDir:      getEnv("DATA_DIR", "data"),
		DeviceTag:    getEnv("DEVICE_TAG", "local_laptop"),
		CameraDevice: getEnv("CAMERA_DEVICE", "/dev/video0"),
		CameraInput:  getEnv("CAMERA_INPUT", "v4l2"),
		FrameRate:    getEnvInt("FRAME_RATE", 30),
		AudioDevice:  getEnv("AUDIO_DEVICE", "default"),
		AudioInput:   getEnv("AUDIO_INPUT", "alsa"),
		SampleRate:   getEnvInt("SAMPLE_RATE", 44100),
		ChunkMs:      getEnvInt("AUDIO_CHUNK_MS", 100),

		BroadcastInterval: getEnvDuration("BROADCAST_INTERVAL", 200*time.Millisecond),
		ReapInterval:      getEnvDuration("REAP_INTERVAL", 10*time.Second),
		HeartbeatTimeout:  getEnvDuration("HEARTBEAT_TIMEOUT", 60*time.Second),
		StopJoinTimeout:   getEnvDuration("STOP_JOIN_TIMEOUT", 3*time.Second),

		DBEnabled:  getEnvBool("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "ai_interview"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "interview.sessions"),
	}

	if cfg.DBEnabled && cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
