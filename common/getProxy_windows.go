package common

import (
	"net/http"
	"net/url"

	"github.com/mattn/go-ieproxy"
	"golang.org/x/net/http/httpproxy"
)

// GetProxy consults the system proxy configuration (PAC script, static IE settings, or
// environment variables, in that order of preference).
func GetProxy() func(*url.URL) (*url.URL, error) {
	conf := ieproxy.GetConf()

	if conf.Automatic.Active {
		return func(u *url.URL) (*url.URL, error) {
			return url.Parse(conf.Automatic.FindProxyForURL(u.String()))
		}
	}

	if conf.Static.Active {
		prox := httpproxy.Config{
			HTTPSProxy: conf.Static.Protocols["https"],
			HTTPProxy:  conf.Static.Protocols["http"],
			NoProxy:    conf.Static.NoProxy,
		}
		return prox.ProxyFunc()
	}

	// Final fallthrough case; use the environment variables.
	return httpproxy.FromEnvironment().ProxyFunc()
}

func ProxyFromFunc(f func(*url.URL) (*url.URL, error)) func(*http.Request) (*url.URL, error) {
	return func(request *http.Request) (*url.URL, error) {
		return f(request.URL)
	}
}
