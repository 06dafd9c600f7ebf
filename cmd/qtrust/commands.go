package main

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kardianos/qtrust"
	"github.com/kardianos/qtrust/probe"
	"github.com/kardianos/qtrust/tdef"
	"github.com/kardianos/qtrust/tstore"
	"github.com/kardianos/qtrust/tui"
)

func (a *app) establisher() (*qtrust.Establisher, error) {
	return qtrust.NewEstablisher(qtrust.EstablisherConfig{
		Store:    a.store,
		Prompter: tui.NewTerminal(a.in, a.out),
		Metrics:  a.metrics,
	})
}

func (a *app) checkChain(chain [][]byte) error {
	est, err := a.establisher()
	if err != nil {
		return err
	}
	n := est.CheckTrust(chain)
	fmt.Fprintf(a.out, "Trusted %d certificate authorities\n", n)
	return nil
}

func (a *app) trustCommand() *cobra.Command {
	var opt probe.Options
	cmd := &cobra.Command{
		Use:   "trust <host:port>",
		Short: "Review a server's certificate chain and trust its authorities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := probe.FetchChain(cmd.Context(), args[0], opt)
			if err != nil {
				return err
			}
			return a.checkChain(chain)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opt.QUIC, "quic", false, "Connect with QUIC instead of TLS over TCP")
	f.StringVar(&opt.ServerName, "server-name", "", "Server name to send, defaults to the host")
	f.StringSliceVar(&opt.NextProtos, "alpn", nil, "ALPN protocols to offer (QUIC defaults to h3)")
	f.DurationVar(&opt.Timeout, "timeout", probe.DefaultTimeout, "Connection timeout")
	return cmd
}

// readCertificates returns every certificate in data, which may hold
// PEM blocks or a single DER certificate.
func readCertificates(data []byte) ([][]byte, error) {
	var out [][]byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			out = append(out, block.Bytes)
		}
	}
	if len(out) > 0 {
		return out, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("no certificates found")
	}
	return [][]byte{data}, nil
}

func readCertificateFiles(paths []string) ([][]byte, error) {
	var chain [][]byte
	for _, p := range paths {
		data, err := os.ReadFile(tstore.ExpandPath(p))
		if err != nil {
			return nil, err
		}
		certs, err := readCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		chain = append(chain, certs...)
	}
	return chain, nil
}

func (a *app) trustFileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trust-file <pem|der>...",
		Short: "Review certificates from files and trust their authorities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := readCertificateFiles(args)
			if err != nil {
				return err
			}
			return a.checkChain(chain)
		},
	}
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trusted authorities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.store.Keys()
			if err != nil {
				return err
			}
			list, err := a.store.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintf(a.out, "No trusted authorities in %s\n", a.engine.Path())
				return nil
			}
			for _, k := range keys {
				ta, ok := list[k]
				if !ok {
					continue
				}
				fmt.Fprintf(a.out, "%s\t%s\n", k, ta.DecodedSubject())
			}
			return nil
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show one trusted authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ta, ok, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%q is not trusted", args[0])
			}
			fmt.Fprintf(a.out, "Key:              %s\n", args[0])
			fmt.Fprintf(a.out, "Subject:          %s\n", ta.DecodedSubject())
			fmt.Fprintf(a.out, "Public key:       %d bytes\n", len(ta.SPKI))
			if ta.NameConstraints != nil {
				fmt.Fprintf(a.out, "Name constraints: %d bytes\n", len(ta.NameConstraints))
			}
			return nil
		},
	}
}

func (a *app) savePEMCommand() *cobra.Command {
	var allowLeaf bool
	cmd := &cobra.Command{
		Use:   "save-pem <file>",
		Short: "Trust the first certificate in a file without prompting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			certs, err := readCertificateFiles(args)
			if err != nil {
				return err
			}
			cert, err := x509.ParseCertificate(certs[0])
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if !cert.IsCA && !allowLeaf {
				return fmt.Errorf("%s is not a certificate authority", cert.Subject)
			}
			key, err := a.store.SaveAnchor(tdef.FromCertificate(cert))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Saved %s\n", key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowLeaf, "allow-leaf", false, "Save even if the certificate is not a CA")
	return cmd
}

func (a *app) delCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>...",
		Short: "Stop trusting authorities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range args {
				if err := a.store.Del(k); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) delAllCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "del-all",
		Short: "Remove every trusted authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete everything in %s without --yes", a.engine.Path())
			}
			n, err := a.store.DelAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file|->",
		Short: "Write every trusted authority to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "-" {
				_, err := a.store.Export(a.out)
				return err
			}
			var buf bytes.Buffer
			n, err := a.store.Export(&buf)
			if err != nil {
				return err
			}
			if err := os.WriteFile(tstore.ExpandPath(args[0]), buf.Bytes(), 0600); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported %d entries\n", n)
			return nil
		},
	}
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Trust every authority in a file written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			var err error
			if args[0] == "-" {
				n, err = a.store.Import(a.in)
			} else {
				var f *os.File
				f, err = os.Open(tstore.ExpandPath(args[0]))
				if err != nil {
					return err
				}
				defer f.Close()
				n, err = a.store.Import(f)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Imported %d entries\n", n)
			return nil
		},
	}
}
