package model

// UserIdentifier names the owner of backups and blobs.
type UserIdentifier string

// DeviceIdentifier names the machine a backup was taken on.
type DeviceIdentifier string

// DefaultDevice is used when no device ID is configured.
const DefaultDevice DeviceIdentifier = "DefaultDevice"

// BackupID is the user-chosen (or generated) name of a backup.
type BackupID string
