package h2

import (
	"crypto/tls"

	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// ListenAutocert binds bindAddress with a TLS config fed by an ACME
// autocert.Manager, adapted from the teacher's examples/autocert — the
// ambient TLS-provisioning path, wired here instead of dropped, since
// spec §1 treats "concrete TLS implementation" as an external collaborator
// but the manager hook itself is ordinary configuration plumbing.
func ListenAutocert(bindAddress string, manager *autocert.Manager, maxConcurrentStreams uint32) (*Listener, error) {
	cfg := &tls.Config{
		GetCertificate: manager.GetCertificate,
		NextProtos:     []string{acme.ALPNProto, "h2"},
	}
	return Listen(bindAddress, cfg, maxConcurrentStreams)
}
