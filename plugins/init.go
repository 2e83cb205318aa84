// Package plugins registers all built-in pipeline stages.
package plugins

import (
	_ "github.com/pktpipe/pktdump/plugins/hexdump"
	_ "github.com/pktpipe/pktdump/plugins/printer"
	_ "github.com/pktpipe/pktdump/plugins/writer"
)
