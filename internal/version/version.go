package version

// Version is the release identifier printed by the CLI and reported
// over the control API.
const Version = "0.3.0"
