package broker

import "time"

// Default configuration values, named and grouped the way go-mcast's
// BaseConfiguration/ClusterConfiguration constants are: a single place
// callers can read or override before constructing an Endpoint.
const (
	// DefaultRecordingDirectory is empty: recording is off unless a caller
	// sets broker.recording-directory.
	DefaultRecordingDirectory = ""

	// DefaultUseRealTime selects the wall-clock Clock unless overridden.
	DefaultUseRealTime = true

	// DefaultDisableSSL is false: TLS is required unless explicitly opted
	// out of.
	DefaultDisableSSL = false

	// DefaultForward mirrors broker.forward: an endpoint does not forward
	// topics on behalf of others unless asked to.
	DefaultForward = false
)

const (
	// DefaultFrontendTimeout bounds how long advance_time's synchronization
	// barrier waits for a sync_point reply before logging and continuing.
	DefaultFrontendTimeout = 5 * time.Second

	// DefaultPeerRetry is a suggested NetworkInfo.Retry value. The Router
	// applies no default: a zero NetworkInfo.Retry means a failed dial is
	// not retried.
	DefaultPeerRetry = 10 * time.Second

	// DefaultMutationBufferInterval bounds how long a bootstrapping clone
	// buffers concurrent commands while awaiting its snapshot.
	DefaultMutationBufferInterval = 2 * time.Second

	// DefaultStaleInterval is how long a clone waits without master
	// communication before marking its state stale.
	DefaultStaleInterval = 15 * time.Second

	// DefaultResyncInterval is how often a disconnected clone retries
	// finding its master.
	DefaultResyncInterval = 5 * time.Second

	// DefaultFlushThreshold is the RecordFile writer's buffered-bytes flush
	// threshold, matching generator_file_writer.cc's default.
	DefaultFlushThreshold = 1024
)
