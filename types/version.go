package types

// Version is the canonical project version.
// The CLI, the notification payloads and the staging manifest share it.
const Version = "0.4.0"

// ContractVersion is the version stamped on published notification events.
// It moves in lockstep with Version.
const ContractVersion = Version
