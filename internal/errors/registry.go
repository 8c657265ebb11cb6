package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (E101-E199)
	// ============================================

	"E101": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The config file could not be parsed. Check the syntax near the reported position.",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Config files must end in .json or .toml.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The listening port must be between 0 and 65535. Port 0 picks a free port.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid target URL",
		Detail:   "The target must be a ws:// or wss:// URL such as the webSocketDebuggerUrl reported by the browser.",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   "The log level must be one of debug, info, warn or error.",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Invalid log format",
		Detail:   "The log format must be text or json.",
	},
	"E107": {
		Category: CategoryConfig,
		Message:  "Invalid dial settings",
		Detail:   "Dial timeout, retry count and retry interval must not be negative.",
	},
	"E108": {
		Category: CategoryConfig,
		Message:  "Recording destination missing",
		Detail:   "Recording is enabled but neither a directory nor an S3 bucket is configured.",
	},
	"E109": {
		Category: CategoryConfig,
		Message:  "Config write failed",
		Detail:   "The config file could not be written.",
	},
	"E110": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No cdpproxy.json or cdpproxy.toml was found.",
	},
	"E111": {
		Category: CategoryConfig,
		Message:  "AWS configuration failed",
		Detail:   "The shared AWS configuration used for transcript uploads could not be loaded.",
	},

	// ============================================
	// Transport Errors (E201-E299)
	// ============================================

	"E201": {
		Category: CategoryTransport,
		Message:  "Target dial failed",
		Detail:   "Could not open a WebSocket to the debug target. Check that the target is running with remote debugging enabled and that the URL is current.",
	},
	"E202": {
		Category: CategoryTransport,
		Message:  "Target dial cancelled",
		Detail:   "The connection attempt was abandoned before it completed.",
	},
	"E203": {
		Category: CategoryTransport,
		Message:  "No target",
		Detail:   "No target URL was given and none is configured.",
	},
	"E204": {
		Category: CategoryProtocol,
		Message:  "Call failed",
		Detail:   "The target answered the call with a protocol error.",
	},
	"E205": {
		Category: CategoryProtocol,
		Message:  "Call timed out",
		Detail:   "No reply arrived before the deadline.",
	},

	// ============================================
	// Server and CLI Errors (E301-E399)
	// ============================================

	"E301": {
		Category: CategoryServer,
		Message:  "Listen failed",
		Detail:   "The proxy could not bind its listening socket. Another process may be using the port.",
	},
	"E302": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		Detail:   "The command arguments could not be used as given.",
	},
	"E303": {
		Category: CategoryServer,
		Message:  "Shutdown failed",
		Detail:   "The server did not shut down cleanly within its timeout.",
	},
	"E304": {
		Category: CategoryServer,
		Message:  "Transcript upload failed",
		Detail:   "A session transcript could not be uploaded to S3. The local copy, if any, is kept.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
