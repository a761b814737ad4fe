package broker

import "time"

// Options is the pre-parsed configuration value the core receives, per §1
// ("the core receives a pre-parsed configuration value"). Grounded on
// go-mcast's BaseConfiguration/ClusterConfiguration split, collapsed to a
// single flat struct since the broker core has one configuration surface
// rather than per-cluster/per-node configuration.
type Options struct {
	// RecordingDirectory, when non-empty, is wiped and recreated at
	// construction and used to write a configuration dump plus any
	// recordings (broker.recording-directory).
	RecordingDirectory string

	// UseRealTime selects the Clock's mode (broker.use-real-time).
	UseRealTime bool

	// DisableSSL selects plaintext transport; when false, TLS is required
	// and construction fails fast if unavailable (broker.disable-ssl).
	DisableSSL bool

	// Forward is carried into the configuration dump (broker.forward). The
	// Endpoint does not consult it: topics are forwarded only when named
	// through Endpoint.Forward.
	Forward bool

	FrontendTimeout        time.Duration
	MutationBufferInterval time.Duration
	StaleInterval          time.Duration
	ResyncInterval         time.Duration
	FlushThreshold         int

	// AwaitStoresOnShutdown is carried in Options but Endpoint.Shutdown
	// does not consult it: attached masters and clones are always stopped
	// through their Shutdown, whatever its value.
	AwaitStoresOnShutdown bool
}

// DefaultOptions returns the Options a bare Endpoint is constructed with if
// the caller supplies none.
func DefaultOptions() Options {
	return Options{
		RecordingDirectory:     DefaultRecordingDirectory,
		UseRealTime:            DefaultUseRealTime,
		DisableSSL:             DefaultDisableSSL,
		Forward:                DefaultForward,
		FrontendTimeout:        DefaultFrontendTimeout,
		MutationBufferInterval: DefaultMutationBufferInterval,
		StaleInterval:          DefaultStaleInterval,
		ResyncInterval:         DefaultResyncInterval,
		FlushThreshold:         DefaultFlushThreshold,
	}
}

// Dump renders the options as a flat key/value listing, the Go analogue of
// endpoint.cc's pretty_print(config_.dump_content()) written to
// <recording-dir>/broker.conf.
func (o Options) Dump() map[string]string {
	return map[string]string{
		"broker.recording-directory":      o.RecordingDirectory,
		"broker.use-real-time":            boolString(o.UseRealTime),
		"broker.disable-ssl":               boolString(o.DisableSSL),
		"broker.forward":                   boolString(o.Forward),
		"broker.frontend-timeout":          o.FrontendTimeout.String(),
		"broker.mutation-buffer-interval":  o.MutationBufferInterval.String(),
		"broker.stale-interval":            o.StaleInterval.String(),
		"broker.resync-interval":           o.ResyncInterval.String(),
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
