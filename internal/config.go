package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/chainpad/internal/models"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Identity modes.
const (
	IdentityModeStatic = "static"
	IdentityModeFile   = "file"
)

// Ledger networks and drivers.
const (
	NetworkBase        = "base"
	NetworkBaseSepolia = "base-sepolia"

	LedgerDriverSQLite = "sqlite"
)

// DefaultContractAddress is the notepad contract the client talks to unless
// configured otherwise.
const DefaultContractAddress = "0x06549fC8614530A91d219fac7baA93e8ef3BF8F2"

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig   `yaml:"app"`
	Ledger   LedgerConfig        `yaml:"ledger"`
	Identity IdentityConfig      `yaml:"identity"`
	Features models.Capabilities `yaml:"features"`
	Auth     AuthConfig          `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// KeepAlive is the interval of comment lines on idle event streams.
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.KeepAlive, validation.Min(time.Duration(0))),
	)
}

// LedgerConfig selects the note store and the contract it emulates.
type LedgerConfig struct {
	Driver            string        `yaml:"driver"`
	Path              string        `yaml:"path"`
	Network           string        `yaml:"network"`
	ContractAddress   string        `yaml:"contract_address"`
	ConfirmationDelay time.Duration `yaml:"confirmation_delay"`
	// RejectEmpty makes the store refuse empty content on its own, in
	// addition to the session's local check.
	RejectEmpty bool `yaml:"reject_empty"`
}

// Validate validates the ledger configuration.
func (c *LedgerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(LedgerDriverSQLite)),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Network, validation.Required, validation.In(NetworkBase, NetworkBaseSepolia)),
		validation.Field(&c.ContractAddress, validation.Required, validation.Match(addressRe)),
		validation.Field(&c.ConfirmationDelay, validation.Min(time.Duration(0))),
	)
}

// IdentityConfig selects where the connected account comes from.
//
// Mode controls the provider:
//   - "static" (default): connected through the API or at startup via Account.
//   - "file": the first line of AccountFile is the account; an empty or
//     missing file means disconnected. External edits are picked up live.
type IdentityConfig struct {
	Mode        string `yaml:"mode"`
	Account     string `yaml:"account"`
	AccountFile string `yaml:"account_file"`
	// AutoConnect connects Account at startup in static mode.
	AutoConnect bool `yaml:"auto_connect"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = IdentityModeStatic
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(IdentityModeStatic, IdentityModeFile)),
		validation.Field(&c.Account,
			validation.When(c.Mode == IdentityModeStatic && c.AutoConnect, validation.Required),
			validation.Match(addressRe)),
		validation.Field(&c.AccountFile, validation.When(c.Mode == IdentityModeFile, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Token, is.PrintableASCII),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:      8080,
				KeepAlive: 15 * time.Second,
			},
		},
		Ledger: LedgerConfig{
			Driver:            LedgerDriverSQLite,
			Path:              "./chainpad.db",
			Network:           NetworkBaseSepolia,
			ContractAddress:   DefaultContractAddress,
			ConfirmationDelay: 2 * time.Second,
			RejectEmpty:       true,
		},
		Identity: IdentityConfig{
			Mode: IdentityModeStatic,
		},
		Features: models.FullCapabilities(),
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
