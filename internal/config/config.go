package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Storage StorageConfig
	JWT     JWTConfig
	Upload  UploadConfig
}

type ServerConfig struct {
	Port string
}

type DBConfig struct {
	Driver     string
	SQLitePath string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
}

type StorageConfig struct {
	Driver string
	Local  LocalStorageConfig
	MinIO  MinIOConfig
}

type LocalStorageConfig struct {
	UploadDir string
	LogoDir   string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type UploadConfig struct {
	MaxSize           int64
	AllowedExtensions []string
}

// ExtensionAllowed reports whether ext (without the leading dot) is on the
// upload allow-list. Comparison is case-insensitive.
func (u UploadConfig) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range u.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func Load() *Config {
	// A missing .env file is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "sqlite"),
			SQLitePath: getEnv("SQLITE_PATH", "fileshare.db"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "fileshare"),
			Password:   getEnv("DB_PASSWORD", "fileshare_secret"),
			Name:       getEnv("DB_NAME", "fileshare"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "local"),
			Local: LocalStorageConfig{
				UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
				LogoDir:   getEnv("LOGO_DIR", "./uploads/logos"),
			},
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
				AccessKey: getEnv("MINIO_ACCESS_KEY", "fileshare"),
				SecretKey: getEnv("MINIO_SECRET_KEY", "fileshare_secret"),
				Bucket:    getEnv("MINIO_BUCKET", "fileshare"),
				UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
			},
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Upload: UploadConfig{
			MaxSize:           getEnvAsInt64("MAX_UPLOAD_SIZE", 16*1024*1024),
			AllowedExtensions: getEnvAsList("ALLOWED_EXTENSIONS", "png,jpg,jpeg,gif,pdf,doc,docx,txt,zip"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			list = append(list, part)
		}
	}
	return list
}
