// Package config handles configuration loading for composer-transfer.
//
// # Overview
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The package provides validation and sensible defaults; a
// config file is optional, since every store path can also be given on
// the command line.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	stores:
//	  payload_path: "${HOME}/.config/Cursor/User/globalStorage/state.vscdb"
//
// Syntax: ${VAR_NAME}. Unset variables expand to empty strings.
//
// # Configuration Sections
//
// Stores:
//
//	stores:
//	  index_path: "/path/to/workspaceStorage/<hash>/state.vscdb"
//	  index_table: "ItemTable"        # default
//	  payload_path: "/path/to/globalStorage/state.vscdb"
//	  payload_table: "cursorDiskKV"   # default
//
// Backup placement:
//
//	backup:
//	  dir: "/var/tmp/composer-backups"  # default: next to each store
//
// Limits:
//
//	limits:
//	  max_store_bytes: 2147483648  # default 2 GiB
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
