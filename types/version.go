package types

// Version is the canonical project version.
// CLI, manifest schema notes, and notification payloads reference this
// constant per the lockstep versioning policy.
const Version = "0.4.0"
