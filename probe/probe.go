// Package probe connects to a TLS or QUIC endpoint and returns the
// certificate chain it presents, without verifying it.
package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/juju/loggo/v2"
	"github.com/quic-go/quic-go"
)

var logger = loggo.GetLogger("qtrust.probe")

// DefaultTimeout bounds the dial and handshake when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// ErrNoCertificates is returned when the peer completes a handshake
// without presenting a certificate.
var ErrNoCertificates = errors.New("qtrust: peer presented no certificates")

// Options configures FetchChain.
type Options struct {
	// QUIC dials over UDP with QUIC instead of TLS over TCP.
	QUIC bool

	// ServerName is sent as SNI. Defaults to the host part of addr.
	ServerName string

	// NextProtos is the ALPN list. QUIC requires one; it defaults to "h3".
	NextProtos []string

	Timeout time.Duration
}

func (o Options) tlsConfig(addr string) (*tls.Config, error) {
	name := o.ServerName
	if name == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", addr, err)
		}
		name = host
	}
	protos := o.NextProtos
	if o.QUIC && len(protos) == 0 {
		protos = []string{"h3"}
	}
	return &tls.Config{
		ServerName: name,
		NextProtos: protos,
		// The chain is collected for the user to judge, not trusted here.
		InsecureSkipVerify: true,
	}, nil
}

// FetchChain dials addr and returns the DER certificates the peer sent,
// leaf first, in the order presented.
func FetchChain(ctx context.Context, addr string, opt Options) ([][]byte, error) {
	conf, err := opt.tlsConfig(addr)
	if err != nil {
		return nil, err
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var state tls.ConnectionState
	if opt.QUIC {
		state, err = quicState(ctx, addr, conf)
	} else {
		state, err = tcpState(ctx, addr, conf)
	}
	if err != nil {
		return nil, err
	}
	if len(state.PeerCertificates) == 0 {
		return nil, ErrNoCertificates
	}
	chain := make([][]byte, len(state.PeerCertificates))
	for i, cert := range state.PeerCertificates {
		chain[i] = cert.Raw
	}
	logger.Debugf("%s presented %d certificates", addr, len(chain))
	return chain, nil
}

func tcpState(ctx context.Context, addr string, conf *tls.Config) (tls.ConnectionState, error) {
	d := tls.Dialer{Config: conf}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return tls.ConnectionState{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	return conn.(*tls.Conn).ConnectionState(), nil
}

func quicState(ctx context.Context, addr string, conf *tls.Config) (tls.ConnectionState, error) {
	conn, err := quic.DialAddr(ctx, addr, conf, &quic.Config{
		HandshakeIdleTimeout: DefaultTimeout,
	})
	if err != nil {
		return tls.ConnectionState{}, fmt.Errorf("dial quic %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "chain collected")
	return conn.ConnectionState().TLS, nil
}
