package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Listener   ListenerConfig
	Engine     EngineConfig
	GameServer GameServerConfig
	Feed       FeedConfig
	Audit      AuditConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	BusyTimeout     time.Duration
}

// ListenerConfig holds event reconciliation settings
type ListenerConfig struct {
	QueueSize       int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	HandlerRetries  int
	HandlerBackoff  time.Duration
	CleanupInterval time.Duration
	DedupeWindow    time.Duration
}

// EngineConfig holds wager lifecycle settings
type EngineConfig struct {
	ChallengeTimeout  time.Duration
	InvitationTimeout time.Duration
	FetchTimeout      time.Duration
	RewardsFile       string
}

// GameServerConfig holds the external game server endpoint
type GameServerConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// FeedConfig selects the event feed transport
type FeedConfig struct {
	AMQPURL  string
	Exchange string
}

// AuditConfig holds the scheduled ledger audit settings
type AuditConfig struct {
	CronSpec string
	Workers  int
}
