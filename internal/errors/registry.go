package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// Registered error codes.
const (
	CodeLookup        = "P001"
	CodeConversion    = "P002"
	CodeTypeMismatch  = "P003"
	CodeCorruptState  = "P004"
	CodeConfigRead    = "P010"
	CodeConfigParse   = "P011"
	CodeConfigInvalid = "P012"
	CodeCLIUsage      = "P020"
	CodeCLIQuery      = "P021"
	CodeSessionLimit  = "P030"
	CodeShuttingDown  = "P031"
	CodeStore         = "P032"
	CodeServer        = "P040"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Parameter Errors (P001-P009)
	// ============================================

	CodeLookup: {
		Category:   CategoryLookup,
		Message:    "Parameter not found",
		Detail:     "The key is not registered with the page's parameter registry.",
		Suggestion: "Register the parameter before updating or reading it.",
	},
	CodeConversion: {
		Category:   CategoryConversion,
		Message:    "Query string value has the wrong type",
		Detail:     "A value in the query string could not be converted to the parameter's type.",
		Suggestion: "Fix or remove the value in the URL; the parameter falls back to its default when the key is absent.",
	},
	CodeTypeMismatch: {
		Category: CategoryLookup,
		Message:  "Parameter holds a value of another type",
	},
	CodeCorruptState: {
		Category:   CategorySession,
		Message:    "Session state is corrupt",
		Detail:     "The reserved parameter slot of the session holds a value the registry did not write.",
		Suggestion: "Do not bind widgets to the reserved key _parameters.",
	},

	// ============================================
	// Config Errors (P010-P019)
	// ============================================

	CodeConfigRead: {
		Category:   CategoryConfig,
		Message:    "Cannot read configuration",
		Suggestion: "Check the path given with --config.",
	},
	CodeConfigParse: {
		Category:   CategoryConfig,
		Message:    "Configuration file is malformed",
		Detail:     "paramsd.json must be valid JSON and paramsd.yaml valid YAML.",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Configuration is invalid",
	},

	// ============================================
	// CLI Errors (P020-P029)
	// ============================================

	CodeCLIUsage: {
		Category:   CategoryCLI,
		Message:    "Invalid command usage",
		Suggestion: "Run paramsd help for usage.",
	},
	CodeCLIQuery: {
		Category:   CategoryCLI,
		Message:    "Malformed query string",
		Suggestion: "Quote the query string so the shell does not split it at '&'.",
	},

	// ============================================
	// Session Errors (P030-P039)
	// ============================================

	CodeSessionLimit: {
		Category: CategorySession,
		Message:  "Too many sessions from this address",
	},
	CodeShuttingDown: {
		Category: CategorySession,
		Message:  "Server is shutting down",
	},
	CodeStore: {
		Category:   CategorySession,
		Message:    "Session store unavailable",
		Suggestion: "Check the store DSN and that the database is reachable.",
	},

	// ============================================
	// Server Errors (P040-P049)
	// ============================================

	CodeServer: {
		Category: CategoryServer,
		Message:  "Server failed",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}
