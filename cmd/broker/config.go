package main

import (
	"github.com/spf13/viper"

	"github.com/jabolina/broker/pkg/broker"
)

// optionsFromViper builds a broker.Options from a Viper instance already
// populated by bindFlags (flags override env, env overrides file, file
// overrides broker.DefaultOptions). Key names mirror Options.Dump's
// "broker.*" naming. The dump is written as key=value lines to broker.conf,
// and viper has no parser for the .conf extension, so that file is not
// accepted as a --config source under its own name.
func optionsFromViper(v *viper.Viper) broker.Options {
	opts := broker.DefaultOptions()
	opts.RecordingDirectory = v.GetString("broker.recording-directory")
	opts.UseRealTime = v.GetBool("broker.use-real-time")
	opts.DisableSSL = v.GetBool("broker.disable-ssl")
	opts.Forward = v.GetBool("broker.forward")
	opts.AwaitStoresOnShutdown = v.GetBool("broker.await-stores-on-shutdown")

	if d := v.GetDuration("broker.frontend-timeout"); d > 0 {
		opts.FrontendTimeout = d
	}
	if d := v.GetDuration("broker.mutation-buffer-interval"); d > 0 {
		opts.MutationBufferInterval = d
	}
	if d := v.GetDuration("broker.stale-interval"); d > 0 {
		opts.StaleInterval = d
	}
	if d := v.GetDuration("broker.resync-interval"); d > 0 {
		opts.ResyncInterval = d
	}
	if n := v.GetInt("broker.flush-threshold"); n > 0 {
		opts.FlushThreshold = n
	}
	return opts
}
