package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// Settings holds the engine configuration: tag derivation policy, archival
// behavior, and the optional preflight probe.
type Settings struct {
	DefaultTag     string        `mapstructure:"default_tag"`     // tag carrying the source object id (empty = disabled)
	TagPrefix      string        `mapstructure:"tag_prefix"`      // prepended to every derived tag key
	TagCase        string        `mapstructure:"tag_case"`        // "none", "upper", "lower"
	CompareMode    string        `mapstructure:"compare_mode"`    // "overwrite" or "preserve"
	GraveyardGroup string        `mapstructure:"graveyard_group"` // archival group for soft-deleted hosts
	ArchiveSuffix  string        `mapstructure:"archive_suffix"`  // appended to the name on soft delete
	PreflightPing  bool          `mapstructure:"preflight_ping"`  // ICMP-probe the host before creation
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	Actor          string        `mapstructure:"actor"` // user recorded on audit events
}

// DefaultSettings returns engine settings with sensible defaults.
func DefaultSettings() Settings {
	return Settings{
		DefaultTag:     "netbox_id",
		TagPrefix:      "netbox/",
		TagCase:        "lower",
		CompareMode:    "overwrite",
		GraveyardGroup: "Graveyard",
		ArchiveSuffix:  "-archived",
		PingTimeout:    2 * time.Second,
		Actor:          "system",
	}
}

// Validate checks the enum-valued settings.
func (s Settings) Validate() error {
	switch s.TagCase {
	case "none", "upper", "lower", "":
	default:
		return fmt.Errorf("invalid tag case %q: must be \"none\", \"upper\", or \"lower\"", s.TagCase)
	}
	if _, err := ParseCompareMode(s.CompareMode); err != nil {
		return err
	}
	if s.ArchiveSuffix == "" {
		return fmt.Errorf("archive suffix must not be empty")
	}
	if s.GraveyardGroup == "" {
		return fmt.Errorf("graveyard group must not be empty")
	}
	return nil
}

// foldCase applies the configured tag key case folding.
func (s Settings) foldCase(key string) string {
	switch s.TagCase {
	case "upper":
		return strings.ToUpper(key)
	case "lower":
		return strings.ToLower(key)
	}
	return key
}
