package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Account is one synced user: the calendar they sync against and the
// credential used to reach it.
type Account struct {
	// UserID is the local owner key for entities and mappings.
	UserID string `toml:"user_id"`

	// CalendarID is the remote calendar, usually "primary".
	CalendarID string `toml:"calendar_id"`

	// Token is the bearer credential for the calendar API.
	Token string `toml:"token"`

	// WebhookToken, when set, must match the channel token on incoming
	// push notifications for this account.
	WebhookToken string `toml:"webhook_token"`

	// Enabled accounts take part in daemon sync cycles.
	Enabled bool `toml:"enabled"`
}

// accountsFile is the TOML document shape: a list of [[accounts]] tables.
type accountsFile struct {
	Accounts []Account `toml:"accounts"`
}

// LoadAccounts reads the TOML accounts file at path.
//
// Example file:
//
//	[[accounts]]
//	user_id = "u-maria"
//	calendar_id = "primary"
//	token = "ya29...."
//	enabled = true
func LoadAccounts(path string) ([]Account, error) {
	var doc accountsFile
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("accounts file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(doc.Accounts))
	for i := range doc.Accounts {
		a := &doc.Accounts[i]
		if a.UserID == "" {
			return nil, fmt.Errorf("accounts[%d]: user_id is required", i)
		}
		if seen[a.UserID] {
			return nil, fmt.Errorf("accounts[%d]: duplicate user_id %q", i, a.UserID)
		}
		seen[a.UserID] = true
		if a.CalendarID == "" {
			a.CalendarID = "primary"
		}
	}
	return doc.Accounts, nil
}

// EnabledAccounts filters to the accounts participating in sync.
func EnabledAccounts(accounts []Account) []Account {
	out := make([]Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}
