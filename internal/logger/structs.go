package logger

// Console writes log lines to stdout and stderr.
type Console struct {
	Enabled bool `toml:"enabled"`
	// UseConsoleWriter prints human readable lines instead of JSON.
	UseConsoleWriter bool
}

// Rotation is one lumberjack file. Sizes are megabytes, ages days.
type Rotation struct {
	Name       string `toml:"name"`
	MaxSize    int    `toml:"maxSize"`
	MaxBackups int    `toml:"maxBackups"`
	MaxAge     int    `toml:"maxAge"`
}

// LogFile writes rolling files below Path, one per level group plus the
// access log.
type LogFile struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`

	Access Rotation `toml:"access"`
	Error  Rotation `toml:"error"`
	Info   Rotation `toml:"info"`
	Trace  Rotation `toml:"trace"`
	Warn   Rotation `toml:"warn"`
}

// Log is the [Log] config section.
type Log struct {
	LogLevel string // trace, debug, info, warn, error
	LogEnv   string

	// EnableAccessLogToConsole copies the access log to the console. It has no
	// effect while Console.Enabled is false.
	EnableAccessLogToConsole bool
	ReportCaller             bool
	DisableCheckAlive        bool // skip /healthz in the access log

	AppName     string
	ServiceName string

	Console Console
	File    LogFile `toml:"file"`
}
