// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/gsdump/pkg/plugin"
	"firestige.xyz/gsdump/plugins/capture/file"
	"firestige.xyz/gsdump/plugins/reporter/console"
	"firestige.xyz/gsdump/plugins/reporter/pcap"
)

func init() {
	// Register capture plugins
	plugin.RegisterCapturer("file", file.NewFileCapturer)

	// Register reporter plugins
	plugin.RegisterReporter("console", console.NewConsoleReporter)
	plugin.RegisterReporter("pcap", pcap.NewPcapReporter)
}
