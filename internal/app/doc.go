// Package app contains the core application logic. It wires the notebook
// loader, the dependency graph and the runtime together, and owns the
// lifecycle of one command: load, evaluate, report. It is decoupled from any
// specific entrypoint like a CLI or server.
package app
