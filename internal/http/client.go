package http

import (
	nethttp "net/http"

	"golang.org/x/net/http2"

	"github.com/doclatex/doclatex/internal/config"
)

// NewDownloadClient returns a proxy-aware client tuned for moving archives
// to and from cloud storage.
// Compression is disabled because archives are already compressed, and HTTP/2
// is only attempted when no proxy sits in between.
func NewDownloadClient(cfg *config.Config) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport; leave it as is.
		return client, nil
	}

	tr.DisableCompression = true
	if tr.Proxy == nil {
		tr.ForceAttemptHTTP2 = true
		_ = http2.ConfigureTransport(tr)
	}
	client.Transport = tr
	return client, nil
}
