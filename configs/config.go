package config

import (
	"encoding/hex"
	"fmt"
	"os"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Config struct {
	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInRedirectURI  string
	PostgresURI          string
	RedisURI             string
	FrontendURL          string
	R2                   R2
	EncryptionSecret     string
	JWTSecret            string
	CookieName           string
}

func LoadConfig() *Config {
	return &Config{
		LinkedInClientID:     getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedInClientSecret: getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedInRedirectURI:  getEnv("LINKEDIN_REDIRECT_URI", "http://localhost:3000/api/posts/oauth/callback"),
		PostgresURI:          getEnv("POSTGRES_URI", ""),
		RedisURI:             getEnv("REDIS_URI", ""),
		FrontendURL:          getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		EncryptionSecret: getEnv("ENCRYPTION_SECRET", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		CookieName:       getEnv("COOKIE_NAME", "linkpilot_session"),
	}
}

// Validate reports configuration the process cannot start without. Missing
// values here are fatal at boot, never recovered at runtime.
func (c *Config) Validate() error {
	if len(c.EncryptionSecret) != 64 {
		return fmt.Errorf("ENCRYPTION_SECRET must be 64 hex characters (32 bytes), got %d", len(c.EncryptionSecret))
	}
	if _, err := hex.DecodeString(c.EncryptionSecret); err != nil {
		return fmt.Errorf("ENCRYPTION_SECRET is not valid hex: %w", err)
	}
	if c.LinkedInClientID == "" || c.LinkedInClientSecret == "" {
		return fmt.Errorf("LINKEDIN_CLIENT_ID and LINKEDIN_CLIENT_SECRET must be set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
