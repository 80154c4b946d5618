// Copyright 2016 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metal-stack/v"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jalmargyyk/pe-dhcpd/dhcp4"
	"github.com/jalmargyyk/pe-dhcpd/dhcpd"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer relayed DHCP requests",
	Long: `Serve binds the DHCP server port and answers every relayed
DHCPDISCOVER with a DHCPOFFER and every DHCPREQUEST with a DHCPACK.
The offered address is the relay agent address plus one.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			fatalf("Error binding flags: %s", err)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := serveConfigFromViper(viper.GetViper())
		if err != nil {
			fatalf("Error reading configuration: %s", err)
		}
		logger, err := newLogger(cfg.Log)
		if err != nil {
			fatalf("Error creating logger: %s", err)
		}
		defer func() { _ = logger.Sync() }()

		if err := serve(cfg, logger.Sugar()); err != nil {
			logger.Sugar().Errorw("serving failed", "error", err)
			_ = logger.Sync()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveFlags(serveCmd.Flags())
}

func serve(cfg *serveConfig, log *zap.SugaredLogger) error {
	if cfg.Options.ServerIP == nil {
		ip, err := dhcpd.GuessServerIP()
		if err != nil {
			return err
		}
		log.Infow("guessed server ip", "server-ip", ip.String())
		cfg.Options.ServerIP = ip
	}
	if err := cfg.Options.Validate(); err != nil {
		return err
	}

	conn, err := dhcp4.NewConn(cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.UID >= 0 || cfg.GID >= 0 {
		if err := dhcpd.DropPrivileges(cfg.UID, cfg.GID); err != nil {
			return err
		}
		log.Infow("dropped privileges", "uid", cfg.UID, "gid", cfg.GID)
	}

	sinks := []dhcpd.EventSink{dhcpd.LogEvents(log)}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := dhcpd.NewMetrics(reg)
		if err != nil {
			return err
		}
		sinks = append(sinks, metrics.Observe)

		srv := metricsServer(cfg.MetricsAddr, reg)
		go func() {
			log.Infow("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	s := &dhcpd.Server{
		Transformer: dhcpd.Transformer{
			Addresses: dhcpd.RelayNextAddress{},
			Options:   cfg.Options,
		},
		Events:      dhcpd.MultiSink(sinks...),
		DropInvalid: cfg.DropInvalid,
		ReadTimeout: cfg.ReadTimeout,
	}

	if cfg.TraceFile != "" {
		f, err := os.Create(cfg.TraceFile)
		if err != nil {
			return err
		}
		defer f.Close()
		s.Trace = dhcpd.NewPcapTrace(f, traceAddr(conn.LocalAddr(), cfg.Options.ServerIP))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infow("pe-dhcpd started", "version", v.V.String(), "listen-addr", conn.LocalAddr().String(), "server-ip", cfg.Options.ServerIP.String())
	err = s.Serve(ctx, conn)
	log.Warn("Shutdown complete")
	return err
}

func metricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", dhcpd.MetricsHandler(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// traceAddr is the address the server shows up with in traces. A
// wildcard listener is shown as the server identifier.
func traceAddr(local net.Addr, serverIP net.IP) *net.UDPAddr {
	addr, ok := local.(*net.UDPAddr)
	if !ok {
		return nil
	}
	ret := &net.UDPAddr{IP: addr.IP, Port: addr.Port}
	if ret.IP == nil || ret.IP.IsUnspecified() {
		ret.IP = serverIP
	}
	return ret
}
