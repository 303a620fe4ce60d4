// Command soundftp is an interactive shell for managing files on a remote
// FTP server, usually the soundtrack folder of a console.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"

	"github.com/gonzalop/soundftp"
	"github.com/gonzalop/soundftp/prommetrics"
)

type config struct {
	host            string
	user            string
	password        string
	timeout         time.Duration
	transferTimeout time.Duration
	active          bool
	disableEPSV     bool
	limit           int64
	verbose         bool
	metricsAddr     string
}

func main() {
	cfg := parseFlags(os.Args[1:])

	level := slog.LevelWarn
	if cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []soundftp.Option{
		soundftp.WithLogger(logger),
		soundftp.WithTimeout(cfg.timeout),
		soundftp.WithTransferTimeout(cfg.transferTimeout),
	}
	if cfg.active {
		opts = append(opts, soundftp.WithActiveMode())
	}
	if cfg.disableEPSV {
		opts = append(opts, soundftp.WithDisableEPSV())
	}
	if cfg.limit > 0 {
		opts = append(opts, soundftp.WithBandwidthLimit(cfg.limit))
	}
	if cfg.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, soundftp.WithMetrics(prommetrics.New(reg)))
		go serveMetrics(logger, cfg.metricsAddr, reg)
	}

	session := soundftp.New(opts...)
	sh := newShell(session, os.Stdout)
	sh.password = func(user string) (string, error) {
		if cfg.password != "" || user == "anonymous" {
			return cfg.password, nil
		}
		return readPassword(user)
	}

	if cfg.host != "" {
		sh.execute("open " + cfg.host + " " + cfg.user)
	}

	p := prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionTitle("soundftp"),
		prompt.OptionLivePrefix(func() (string, bool) {
			if session.State() != soundftp.Authenticated {
				return "soundftp> ", true
			}
			return fmt.Sprintf("%s:%s> ", session.Addr(), session.WorkingDirectory()), true
		}),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionCompletionWordSeparator(" "),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			in = strings.TrimSpace(in)
			return breakline && (in == "exit" || in == "quit")
		}),
	)
	p.Run()

	if err := session.Disconnect(); err != nil {
		logger.Warn("disconnect failed", "error", err)
	}
}

func parseFlags(args []string) config {
	var cfg config
	fs := flag.NewFlagSet("soundftp", flag.ExitOnError)
	fs.StringVar(&cfg.host, "host", env("SOUNDFTP_HOST", ""), "server to connect to on startup (host[:port])")
	fs.StringVar(&cfg.user, "user", env("SOUNDFTP_USER", "anonymous"), "login user")
	fs.StringVar(&cfg.password, "password", os.Getenv("SOUNDFTP_PASSWORD"), "login password (asked for when empty)")
	fs.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "control connection timeout")
	fs.DurationVar(&cfg.transferTimeout, "transfer-timeout", 5*time.Minute, "data connection idle timeout")
	fs.BoolVar(&cfg.active, "active", false, "use active mode (PORT/EPRT)")
	fs.BoolVar(&cfg.disableEPSV, "no-epsv", false, "use PASV only")
	fs.Int64Var(&cfg.limit, "limit", 0, "bandwidth limit in bytes per second (0 for none)")
	fs.BoolVar(&cfg.verbose, "verbose", false, "log protocol traffic to stderr")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", env("SOUNDFTP_METRICS_ADDR", ""), "serve Prometheus metrics on this address")
	_ = fs.Parse(args)
	if cfg.host == "" && fs.NArg() > 0 {
		cfg.host = fs.Arg(0)
	}
	return cfg
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func readPassword(user string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given and stdin is not a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", user)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prommetrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "addr", addr, "error", err)
	}
}
