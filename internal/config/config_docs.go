package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "notify.socket_file")
// to their [FieldDoc] entries. Section names map to the comment printed above
// the section header.
var ConfigDocs = map[string]FieldDoc{
	// ── Root ──────────────────────────────────────────────────────
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// ── REST ─────────────────────────────────────────────────────
	"rest": {
		Comment: "Query server. GET /answer, /perspective_index and /service_state.",
	},
	"rest.host": {
		Comment: "Listen host. Empty listens on every interface.",
		Alternatives: []string{
			`host = "127.0.0.1"`,
		},
	},
	"rest.port": {},
	"rest.shutdown_timeout_seconds": {
		Comment: "Upper bound on draining in-flight requests during shutdown.",
	},

	// ── Notify ───────────────────────────────────────────────────
	"notify": {
		Comment: "Service-manager notification socket (READY=1 / MAINPID=n datagrams).",
	},
	"notify.socket_file": {},
	"notify.network": {
		Comment: "Socket type. Options: \"unixgram\", \"unix\"",
		Alternatives: []string{
			`network = "unix"`,
		},
	},
	"notify.connect_timeout_seconds": {
		Comment: "How long to keep retrying a missing socket before giving up on one update.",
	},
	"notify.poll_interval_seconds": {
		Comment: "Wait between connection attempts.",
	},

	// ── Injection ────────────────────────────────────────────────
	"injection": {
		Comment: "Scripted notification batch, sent once on the next transition to Available.",
	},
	"injection.messages_file": {},

	// ── Memory ───────────────────────────────────────────────────
	"memory": {
		Comment: "Knowledge saved at shutdown and restored (then deleted) at the next start.",
	},
	"memory.file": {},

	// ── Knowledge ────────────────────────────────────────────────
	"knowledge": {
		Comment: "Perspective tables. The built-in table is always loaded first.",
	},
	"knowledge.sources": {
		Comment: "Glob patterns (** supported) naming extra YAML perspective files.",
		Alternatives: []string{
			`sources = ["/etc/seer/perspectives/**/*.yaml"]`,
		},
	},

	// ── Metrics ──────────────────────────────────────────────────
	"metrics": {
		Comment: "Prometheus exporter",
	},
	"metrics.addr": {
		Comment: "Listen address for /metrics. Empty disables the exporter.",
		Alternatives: []string{
			`addr = ":9100"`,
		},
	},

	// ── Log ──────────────────────────────────────────────────────
	"log": {
		Comment: "Logging configuration. SEER_LOG_LEVEL overrides level.",
	},
	"log.level": {
		Comment: "Minimum log level. Options: \"trace\", \"debug\", \"info\", \"warn\", \"error\"",
		Alternatives: []string{
			`level = "debug"`,
			`level = "warn"`,
		},
	},
	"log.file": {
		Comment: "Optional rotating log file, written in addition to stdout.",
		Alternatives: []string{
			`file = "/tmp/testassitant/seer.log"`,
		},
	},
	"log.max_size_mb": {
		Comment: "Maximum log file size in megabytes before rotation.",
	},
}
