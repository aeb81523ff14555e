// Package config loads the process configuration from the environment.
//
// Everything that used to be a lazily-read global (signing secret, SMTP
// credentials, policy constants) lives in one Config built at startup and
// passed by reference to the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int
	// DBPath is the SQLite database file path.
	DBPath string
	// JWTSecret signs bearer tokens and verification codes. Required.
	JWTSecret string
	// BaseURL is the externally visible URL, used in verification links.
	BaseURL string
	// LoginRedirectURL is where a successful verification redirects to.
	LoginRedirectURL string

	// SMTP relay for verification mail. Mail sending is disabled when
	// SMTPHost is empty; signup still works, the code is only logged.
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	MailFrom string

	// AllowedEmailDomains restricts signup to the listed domains.
	// Empty means any domain is accepted.
	AllowedEmailDomains []string

	// PlanContainerLimit is the per-user cap on active containers.
	PlanContainerLimit int
	// PortRangeStart/End bound the host ports leased to containers,
	// inclusive on both ends.
	PortRangeStart int
	PortRangeEnd   int
	// DefaultImage is used when a create request names no image.
	DefaultImage string
	// ContainerPort is the port inside the container that the leased host
	// port maps to.
	ContainerPort int
	// DefaultCPUShares is applied when a create request leaves shares unset.
	DefaultCPUShares int64
}

// Load reads configuration from the environment, applying defaults for
// everything except the signing secret.
func Load() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}

	cfg := &Config{
		Port:               8080,
		DBPath:             "data/dockhive.db",
		JWTSecret:          secret,
		BaseURL:            "http://localhost:8080",
		LoginRedirectURL:   "http://localhost:8080/login",
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           587,
		SMTPUser:           os.Getenv("SMTP_USER"),
		SMTPPass:           os.Getenv("SMTP_PASS"),
		MailFrom:           "account@dockhive.local",
		PlanContainerLimit: 2,
		PortRangeStart:     59001,
		PortRangeEnd:       59999,
		DefaultImage:       "dorowu/ubuntu-desktop-lxde-vnc",
		ContainerPort:      80,
		DefaultCPUShares:   512,
	}

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		cfg.Port = p
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("LOGIN_REDIRECT_URL"); v != "" {
		cfg.LoginRedirectURL = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.SMTPPort = p
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		cfg.MailFrom = v
	}
	if v := os.Getenv("ALLOWED_EMAIL_DOMAINS"); v != "" {
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(strings.ToLower(d)); d != "" {
				cfg.AllowedEmailDomains = append(cfg.AllowedEmailDomains, d)
			}
		}
	}
	if v := os.Getenv("PLAN_CONTAINER_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("config: invalid PLAN_CONTAINER_LIMIT %q", v)
		}
		cfg.PlanContainerLimit = n
	}
	if v := os.Getenv("PORT_RANGE_START"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT_RANGE_START %q: %w", v, err)
		}
		cfg.PortRangeStart = p
	}
	if v := os.Getenv("PORT_RANGE_END"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT_RANGE_END %q: %w", v, err)
		}
		cfg.PortRangeEnd = p
	}
	if cfg.PortRangeStart > cfg.PortRangeEnd {
		return nil, fmt.Errorf("config: port range %d-%d is empty", cfg.PortRangeStart, cfg.PortRangeEnd)
	}
	if v := os.Getenv("DEFAULT_IMAGE"); v != "" {
		cfg.DefaultImage = v
	}
	if v := os.Getenv("CONTAINER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid CONTAINER_PORT %q: %w", v, err)
		}
		cfg.ContainerPort = p
	}

	return cfg, nil
}
