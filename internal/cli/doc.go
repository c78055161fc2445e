// Package cli provides command-line interface setup and configuration
// for setu. It builds the cobra command tree, resolves configuration
// through viper and wires the pipeline collaborators for each command.
package cli
