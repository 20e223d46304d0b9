// Package plugin defines the capturer, parser and reporter contracts of a
// decode run and the registry that wires them by name.
package plugin

import "context"

// Plugin is the lifecycle shared by every capturer, parser and reporter.
// Init receives the plugin's section of the run configuration and must
// reject invalid settings with core.ErrConfigInvalid. Start is called once
// before the first frame and Stop once after the last record was flushed.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
