package cli

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jalmargyyk/pe-dhcpd/dhcpd"
)

// serveConfig is everything the serve command needs, gathered from
// flags, environment and config file.
type serveConfig struct {
	replyConfig
	ListenAddr  string
	ReadTimeout time.Duration
	MetricsAddr string
	TraceFile   string
	UID, GID    int
	Log         logConfig
}

// replyConfig decides what replies look like. serve and replay share
// it.
type replyConfig struct {
	Options     dhcpd.ServerOptions
	DropInvalid bool
}

func replyFlags(fs *pflag.FlagSet) {
	defaults := dhcpd.DefaultServerOptions(nil)

	fs.String("server-ip", "", "server identifier to put into replies, guessed from the default route if empty")
	fs.StringSlice("dns-servers", ipStrings(defaults.DNSServers), "DNS servers handed to clients")
	fs.StringSlice("ntp-servers", ipStrings(defaults.NTPServers), "NTP servers handed to clients")
	fs.Duration("lease-time", defaults.LeaseTime, "lease time handed to clients")
	fs.Duration("renewal-time", defaults.RenewalTime, "renewal (T1) time handed to clients")
	fs.Duration("rebinding-time", defaults.RebindingTime, "rebinding (T2) time handed to clients")
	fs.Bool("drop-invalid", false, "ignore requests without a valid message type instead of answering them as DHCPREQUEST")
}

func serveFlags(fs *pflag.FlagSet) {
	replyFlags(fs)
	fs.String("listen-addr", "0.0.0.0:67", "address to receive relayed DHCP requests on")
	fs.Duration("read-timeout", 10*time.Second, "how long to wait for a datagram before checking for shutdown")
	fs.String("metrics-addr", "", "address to serve prometheus metrics on, disabled if empty")
	fs.String("trace-file", "", "write every datagram received and sent to this pcap file")
	fs.Int("uid", -1, "user id to switch to after binding the socket, -1 to keep")
	fs.Int("gid", -1, "group id to switch to after binding the socket, -1 to keep")
	logFlags(fs)
}

// replyConfigFromViper leaves Options.ServerIP nil when no server IP
// is configured.
func replyConfigFromViper(v *viper.Viper) (replyConfig, error) {
	cfg := replyConfig{DropInvalid: v.GetBool("drop-invalid")}

	opts := dhcpd.DefaultServerOptions(nil)
	if s := v.GetString("server-ip"); s != "" {
		ip := net.ParseIP(s).To4()
		if ip == nil {
			return cfg, fmt.Errorf("server-ip %q is not an IPv4 address", s)
		}
		opts.ServerIP = ip
	}
	var err error
	if opts.DNSServers, err = parseIPs("dns-servers", v.GetStringSlice("dns-servers")); err != nil {
		return cfg, err
	}
	if opts.NTPServers, err = parseIPs("ntp-servers", v.GetStringSlice("ntp-servers")); err != nil {
		return cfg, err
	}
	opts.LeaseTime = v.GetDuration("lease-time")
	opts.RenewalTime = v.GetDuration("renewal-time")
	opts.RebindingTime = v.GetDuration("rebinding-time")
	cfg.Options = opts
	return cfg, nil
}

func serveConfigFromViper(v *viper.Viper) (*serveConfig, error) {
	reply, err := replyConfigFromViper(v)
	if err != nil {
		return nil, err
	}
	cfg := &serveConfig{
		replyConfig: reply,
		ListenAddr:  v.GetString("listen-addr"),
		ReadTimeout: v.GetDuration("read-timeout"),
		MetricsAddr: v.GetString("metrics-addr"),
		TraceFile:   v.GetString("trace-file"),
		UID:         v.GetInt("uid"),
		GID:         v.GetInt("gid"),
		Log:         logConfigFromViper(v),
	}
	if cfg.ReadTimeout <= 0 {
		return nil, fmt.Errorf("read-timeout must be positive, got %s", cfg.ReadTimeout)
	}
	return cfg, nil
}

// parseIPs also splits on commas, since lists from the environment
// arrive as a single string.
func parseIPs(name string, ss []string) ([]net.IP, error) {
	var ret []net.IP
	for _, s := range ss {
		for _, f := range strings.Split(s, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			ip := net.ParseIP(f).To4()
			if ip == nil {
				return nil, fmt.Errorf("%s: %q is not an IPv4 address", name, f)
			}
			ret = append(ret, ip)
		}
	}
	return ret, nil
}

func ipStrings(ips []net.IP) []string {
	ret := make([]string, 0, len(ips))
	for _, ip := range ips {
		ret = append(ret, ip.String())
	}
	return ret
}
