package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	RedisURL      string
	RedisPassword string
	RedisDB       int

	// SupabaseURL 托管平台的基础地址，auth/realtime/storage 都挂在它下面
	SupabaseURL    string
	AnonKey        string
	ServiceRoleKey string // 只给 cmd/seed 使用
	JWTSecret      string

	RequestTimeout          time.Duration
	SessionBootTimeout      time.Duration
	RealtimeEventsPerSecond int
	SessionStore            string // "redis" | "memory"
	CORSOrigins             []string

	Storage struct {
		Endpoint        string
		Region          string
		AccessKeyID     string
		SecretAccessKey string
		Bucket          string
	}
}

// Load 加载配置（.env + 环境变量）
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	requestTimeout, _ := strconv.Atoi(getEnv("REQUEST_TIMEOUT_SECONDS", "15"))
	bootTimeout, _ := strconv.Atoi(getEnv("SESSION_BOOT_TIMEOUT_SECONDS", "6"))
	eventsPerSecond, _ := strconv.Atoi(getEnv("REALTIME_EVENTS_PER_SECOND", "10"))

	supabaseURL := strings.TrimRight(getEnv("SUPABASE_URL", "http://localhost:8000"), "/")

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 redisDB,
		SupabaseURL:             supabaseURL,
		AnonKey:                 os.Getenv("SUPABASE_ANON_KEY"),
		ServiceRoleKey:          os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		JWTSecret:               os.Getenv("JWT_SECRET"),
		RequestTimeout:          time.Duration(requestTimeout) * time.Second,
		SessionBootTimeout:      time.Duration(bootTimeout) * time.Second,
		RealtimeEventsPerSecond: eventsPerSecond,
		SessionStore:            getEnv("SESSION_STORE", "redis"),
		CORSOrigins:             splitList(getEnv("CORS_ORIGINS", "*")),
	}

	cfg.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", supabaseURL+"/storage/v1/s3")
	cfg.Storage.Region = getEnv("STORAGE_REGION", "local")
	cfg.Storage.AccessKeyID = os.Getenv("STORAGE_ACCESS_KEY_ID")
	cfg.Storage.SecretAccessKey = os.Getenv("STORAGE_SECRET_ACCESS_KEY")
	cfg.Storage.Bucket = getEnv("STORAGE_BUCKET", "fotos-perfil")

	// 没有 anon key 平台会拒绝所有请求，直接启动失败
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("SUPABASE_ANON_KEY is not set (run the platform setup or define it in .env)")
	}

	return cfg, nil
}

// AuthURL GoTrue 基础地址
func (c *Config) AuthURL() string {
	return c.SupabaseURL + "/auth/v1"
}

// RealtimeURL realtime websocket 地址
func (c *Config) RealtimeURL() string {
	u := c.SupabaseURL + "/realtime/v1/websocket"
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}

// PublicObjectURL 公开对象访问前缀
func (c *Config) PublicObjectURL() string {
	return c.SupabaseURL + "/storage/v1/object/public/" + c.Storage.Bucket
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
