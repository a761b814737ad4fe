// Command broker is a demonstration binary showing one realistic way to
// drive pkg/broker: cobra for the command surface, viper for layered
// file/env/flag configuration, feeding a broker.Options into broker.New.
// CLI parsing lives entirely here, outside the core's import graph.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jabolina/broker/pkg/broker"
	"github.com/jabolina/broker/pkg/broker/definition"
	"github.com/jabolina/broker/pkg/broker/store"
	"github.com/jabolina/broker/pkg/broker/transport"
)

var peers []string

func main() {
	v := viper.New()
	root := &cobra.Command{
		Use:   "broker",
		Short: "Publish/subscribe and replicated key-value broker node",
	}

	root.PersistentFlags().String("recording-dir", "", "directory to record published messages to (disabled if empty)")
	root.PersistentFlags().Bool("use-real-time", true, "use the wall clock instead of a virtual, advance_time-driven one")
	root.PersistentFlags().Bool("disable-ssl", false, "use plaintext connections instead of requiring TLS")
	root.PersistentFlags().Bool("forward", false, "recorded as broker.forward in the config dump; forwarding itself is set per topic through Endpoint.Forward")
	root.PersistentFlags().Duration("frontend-timeout", 0, "bound on advance_time's synchronization barrier (0 = default)")
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML/JSON/TOML configuration file")

	bindFlags(v, root.PersistentFlags())

	root.AddCommand(serveCmd(v))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var configFile string

// bindFlags wires cobra's persistent flags into viper under a "broker."
// namespace (matching Options.Dump's key naming) and enables BROKER_*
// environment variable overrides, so a flag's absence falls through to
// env, then to a config file, then to broker.DefaultOptions.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvPrefix("broker")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	_ = v.BindPFlag("broker.recording-directory", flags.Lookup("recording-dir"))
	_ = v.BindPFlag("broker.use-real-time", flags.Lookup("use-real-time"))
	_ = v.BindPFlag("broker.disable-ssl", flags.Lookup("disable-ssl"))
	_ = v.BindPFlag("broker.forward", flags.Lookup("forward"))
	_ = v.BindPFlag("broker.frontend-timeout", flags.Lookup("frontend-timeout"))
}

func serveCmd(v *viper.Viper) *cobra.Command {
	var listenAddr string
	var storeName string
	var advertiseAddr string
	var discoveryGroup string
	var discoveryInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a broker endpoint: listen for peers and optionally host a replicated store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file %s: %w", configFile, err)
				}
			}

			opts := optionsFromViper(v)
			log := definition.NewDefaultLogger()

			tp, err := transport.New(transport.Config{DisableSSL: opts.DisableSSL, Log: log})
			if err != nil {
				return fmt.Errorf("constructing transport: %w", err)
			}

			var selfNetwork broker.NetworkInfo
			if advertiseAddr != "" {
				selfNetwork, err = parseNetworkInfo(advertiseAddr)
				if err != nil {
					return fmt.Errorf("invalid --advertise %q: %w", advertiseAddr, err)
				}
			}

			ep, err := broker.New(broker.EndpointConfig{
				Self:                      broker.NodeID(nodeID(listenAddr)),
				Options:                   opts,
				Log:                       log,
				Transport:                 tp,
				SelfNetwork:               selfNetwork,
				DiscoveryGroup:            discoveryGroup,
				DiscoveryAnnounceInterval: discoveryInterval,
			})
			if err != nil {
				return fmt.Errorf("constructing endpoint: %w", err)
			}
			if discoveryGroup != "" {
				log.Infof("joined discovery group %s", discoveryGroup)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if listenAddr != "" {
				if err := ep.Listen(ctx, listenAddr); err != nil {
					return fmt.Errorf("listening on %s: %w", listenAddr, err)
				}
				log.Infof("listening for peers on %s", listenAddr)
			}

			for _, addr := range peers {
				info, err := parseNetworkInfo(addr)
				if err != nil {
					log.Warnf("skipping invalid peer %q: %v", addr, err)
					continue
				}
				ep.PeerNosync(info)
			}

			if storeName != "" {
				backend := store.NewMemoryBackend(ep.Clock().Now)
				ep.AttachMaster(storeName, backend)
				log.Infof("hosting master for store %q", storeName)
			}

			<-ctx.Done()
			log.Info("shutting down")
			ep.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "address to accept inbound peer connections on (disabled if empty)")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "address:port of a peer to connect to (repeatable)")
	cmd.Flags().StringVar(&storeName, "master-store", "", "name of a replicated store to host a master for (disabled if empty)")
	cmd.Flags().StringVar(&advertiseAddr, "advertise", "", "address:port this endpoint announces to the discovery group (required if --discovery-group is set)")
	cmd.Flags().StringVar(&discoveryGroup, "discovery-group", "", "relt group address for peer discovery (disabled if empty)")
	cmd.Flags().DurationVar(&discoveryInterval, "discovery-announce-interval", 0, "how often to announce this endpoint to the discovery group (0 = default)")
	return cmd
}

func nodeID(listenAddr string) string {
	if listenAddr != "" {
		return "broker-" + listenAddr
	}
	return "broker-client"
}

// parseNetworkInfo splits a host:port peer address into a broker.NetworkInfo.
func parseNetworkInfo(addr string) (broker.NetworkInfo, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return broker.NetworkInfo{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return broker.NetworkInfo{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return broker.NetworkInfo{Address: host, Port: uint16(port)}, nil
}
