package cmd

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// listenAddr resolves the address the serve command binds to. The configured
// default is used unless the command line overrides it, either positionally
// (aerodoc serve :9000) or with -addr/--addr.
func listenAddr(args []string, configured string) (string, error) {
	addr := configured

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		addr = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	flagAddr := fs.String("addr", "", "listen address (host:port)")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("parsing serve flags: %w", err)
	}
	if *flagAddr != "" {
		addr = *flagAddr
	}

	if err := checkListenAddr(addr); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return addr, nil
}

// checkListenAddr rejects addresses net.Listen would choke on at runtime,
// so a typo fails at startup with a readable message.
func checkListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("want host:port: %w", err)
	}

	if port == "" {
		return errors.New("missing port")
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port %q is not a number", port)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("port %d out of range", n)
	}

	// Empty host means all interfaces; an IP literal is fine as is.
	if host == "" || net.ParseIP(host) != nil {
		return nil
	}
	for _, r := range host {
		if unicode.IsSpace(r) {
			return fmt.Errorf("host %q contains whitespace", host)
		}
	}
	return nil
}
