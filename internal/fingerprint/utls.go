// Package fingerprint builds HTTP transports whose TLS ClientHello matches a
// real browser. Ranking pages and competitor sites increasingly fingerprint
// the handshake, so the page fetcher presents a browser profile instead of
// the Go default.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS fingerprint the fetcher can present.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // plain crypto/tls handshake
	ProfileRandom  Profile = "random" // randomized uTLS hello
)

// DefaultProfile is what the service presents when the config leaves the
// fingerprint unset. Chrome is the least remarkable hello on the open web.
const DefaultProfile = ProfileChrome

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedALPN,
}

// ParseProfile validates a profile name from configuration. An empty name
// resolves to DefaultProfile.
func ParseProfile(name string) (Profile, error) {
	if name == "" {
		return DefaultProfile, nil
	}
	p := Profile(name)
	if p == ProfileGo {
		return p, nil
	}
	if _, ok := helloIDs[p]; !ok {
		return "", fmt.Errorf("fingerprint: unknown profile %q", name)
	}
	return p, nil
}

// Transport returns an http.RoundTripper presenting the given profile.
// ProfileGo yields a plain cloned http.Transport; every other profile swaps
// in a DialTLSContext that performs the handshake through utls.UClient.
// proxyFunc, when non-nil, becomes the transport's Proxy callback.
func Transport(p Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyFunc != nil {
		transport.Proxy = proxyFunc
	}
	if p == ProfileGo {
		return transport, nil
	}

	helloID, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host}, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}
