// Package config содержит логику чтения конфигурации движка кошельков.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации движка кошельков.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	EntitlementAddress string `env:"ENTITLEMENT_SERVICE_ADDRESS"`

	WithdrawalsEnabled  bool              `env:"WITHDRAWALS_ENABLED" envDefault:"true"`
	WithdrawalMinAmount decimal.Decimal   `env:"WITHDRAWAL_MIN_AMOUNT" envDefault:"100"`
	WithdrawalMaxAmount decimal.Decimal   `env:"WITHDRAWAL_MAX_AMOUNT" envDefault:"500000"`
	ReferralRates       []decimal.Decimal `env:"REFERRAL_RATES" envSeparator:"," envDefault:"5,3,1"`
	DayTimezone         string            `env:"DAY_TIMEZONE" envDefault:"Africa/Lagos"`
	ReconcileInterval   time.Duration     `env:"RECONCILE_INTERVAL" envDefault:"10m"`
}

const maxReferralLevels = 3

var hundred = decimal.NewFromInt(100)

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envEntitlementAddress := cfg.EntitlementAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.EntitlementAddress, "e", "", "entitlement service address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envEntitlementAddress != "" {
		cfg.EntitlementAddress = envEntitlementAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.WithdrawalMinAmount.IsNegative() || c.WithdrawalMaxAmount.IsNegative() {
		return errors.New("withdrawal limits must not be negative")
	}
	if c.WithdrawalMaxAmount.IsPositive() && c.WithdrawalMinAmount.GreaterThan(c.WithdrawalMaxAmount) {
		return fmt.Errorf("withdrawal min %s exceeds max %s", c.WithdrawalMinAmount, c.WithdrawalMaxAmount)
	}
	if len(c.ReferralRates) > maxReferralLevels {
		return fmt.Errorf("at most %d referral levels are supported, got %d", maxReferralLevels, len(c.ReferralRates))
	}
	for i, r := range c.ReferralRates {
		if r.IsNegative() || r.GreaterThan(hundred) {
			return fmt.Errorf("referral rate for level %d must be within 0..100, got %s", i+1, r)
		}
	}
	if c.ReconcileInterval < 0 {
		return errors.New("reconcile interval must not be negative")
	}
	return nil
}

// ReferralFractions возвращает ставки реферальных бонусов в долях единицы.
func (c *Config) ReferralFractions() []decimal.Decimal {
	res := make([]decimal.Decimal, 0, len(c.ReferralRates))
	for _, r := range c.ReferralRates {
		res = append(res, r.Div(hundred))
	}
	return res
}

// Location возвращает часовой пояс, в котором считаются календарные дни.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DayTimezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.DayTimezone, err)
	}
	return loc, nil
}
