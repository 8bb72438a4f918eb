// Package fasthttp2 bridges the gRPC server with an ordinary HTTP/1.1
// surface for operational endpoints (health checks, service listing)
// that have no business going through the gRPC wire format. Grounded on
// the teacher's fasthttp.go/adaptor.go header-translation idiom, repurposed
// here from "speak HTTP/2 over fasthttp.RequestCtx" to "front the RPC
// server's registry with a small fasthttp.Router" — the header-translation
// machinery itself doesn't apply once responses are no longer HEADERS
// frames, so only the fasthttp/router/bytebufferpool wiring survives.
package fasthttp2

import (
	"strings"

	"github.com/fasthttp/router"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

// MethodLister is satisfied by server.Server: it exposes the set of
// registered method paths for the /debug/methods endpoint without this
// package importing package server.
type MethodLister interface {
	Methods() []string
}

// Bridge serves operational HTTP/1.1 endpoints alongside the gRPC
// listener: GET /healthz and GET /debug/methods.
type Bridge struct {
	srv    *fasthttp.Server
	lister MethodLister
}

// New builds a Bridge fronting lister's registered methods.
func New(lister MethodLister) *Bridge {
	b := &Bridge{lister: lister}

	r := router.New()
	r.GET("/healthz", b.handleHealthz)
	r.GET("/debug/methods", b.handleMethods)

	b.srv = &fasthttp.Server{
		Handler: r.Handler,
	}
	return b
}

// ListenAndServe binds addr and blocks serving the bridge's HTTP/1.1
// endpoints until the listener is closed or an error occurs.
func (b *Bridge) ListenAndServe(addr string) error {
	return b.srv.ListenAndServe(addr)
}

// Shutdown stops accepting new connections and drains in-flight ones.
func (b *Bridge) Shutdown() error {
	return b.srv.Shutdown()
}

func (b *Bridge) handleHealthz(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString("ok")
}

func (b *Bridge) handleMethods(ctx *fasthttp.RequestCtx) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, m := range b.lister.Methods() {
		buf.WriteString(trimLeadingSlash(m))
		buf.WriteString("\n")
	}

	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.Write(buf.Bytes())
}

// trimLeadingSlash mirrors the teacher's path-normalization helper
// (fasthttp.go's use of URI().SetPathBytes), used here to keep
// /debug/methods output consistent regardless of how RegisterHandler's
// method path was spelled.
func trimLeadingSlash(path string) string {
	return strings.TrimPrefix(path, "/")
}
