package config

// Version is the build version string reported by --version, matching
// lnd's use of a package-level build-time version constant.
const Version = "0.1.0"
