// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "eventhub"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/eventhub/ (Windows) or ~/.config/eventhub/ (other)
	DirName = "eventhub"

	// LockFileName guards a data directory against a second server process.
	LockFileName = "eventhub.lock"

	// ConfigFileName is the configuration file name.
	ConfigFileName = "config.yaml"

	// SecretsFileName is the secrets file name.
	SecretsFileName = "secrets.json"

	// DatabaseFileName is the relational SQLite database file name.
	DatabaseFileName = "eventhub.sqlite"

	// DocumentsFileName is the embedded document store file name.
	DocumentsFileName = "documents.sqlite"

	// UserAgent is sent by connectors on every outbound request.
	UserAgent = "eventhub-sync/1.0 (+https://github.com/graaaaa/eventhub)"
)
