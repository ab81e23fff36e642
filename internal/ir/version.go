package ir

// Version is the recline release reported by the CLI.
const Version = "0.1.0"
