package config

import (
	"strconv"
	"time"
)

type SecurityConfig interface {
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetMaxLoginAttempts() int
	GetLockoutDuration() time.Duration
	GetIPAttemptThreshold() int
	GetIPAttemptWindow() time.Duration
	GetBlacklistSweepInterval() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetAccessTokenTTL() time.Duration {
	return getDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
}

func (Security) GetRefreshTokenTTL() time.Duration {
	return getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
}

// The access and refresh secrets must differ so that compromising one key
// cannot forge the other token variant.
func (Security) GetAccessTokenSecret() string {
	return GetEnv("ACCESS_TOKEN_SECRET", "")
}

func (Security) GetRefreshTokenSecret() string {
	return GetEnv("REFRESH_TOKEN_SECRET", "")
}

func (Security) GetMaxLoginAttempts() int {
	return getInt("MAX_LOGIN_ATTEMPTS", 5)
}

func (Security) GetLockoutDuration() time.Duration {
	return getDuration("LOCKOUT_DURATION", 30*time.Minute)
}

func (Security) GetIPAttemptThreshold() int {
	return getInt("IP_ATTEMPT_THRESHOLD", 10)
}

func (Security) GetIPAttemptWindow() time.Duration {
	return getDuration("IP_ATTEMPT_WINDOW", time.Hour)
}

func (Security) GetBlacklistSweepInterval() time.Duration {
	return getDuration(sweepEnvVar, time.Hour)
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

func getInt(envVar string, defaultValue int) int {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}
