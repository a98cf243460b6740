// Package logx is labbot's logging layer: a value-type Logger over zerolog
// whose outputs (console, JSON file, Discord log channel) can be swapped at
// runtime by Service.Apply without re-wiring the components holding it.
package logx
