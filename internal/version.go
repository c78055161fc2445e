package internal

// Version is the current setu release.
const Version = "0.4.0"
