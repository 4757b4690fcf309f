// Package config loads, normalizes, and validates captionstitch settings.
//
// Values come from a TOML file (see sample_config.toml), fall back to
// repository defaults, and pick up provider API keys from GEMINI_API_KEY,
// OPENAI_API_KEY and ANTHROPIC_API_KEY when the file leaves them empty.
// Command-line flags are applied by the cli package after Load returns.
package config
