package network

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"market-relay/src/logger"
	"market-relay/src/models"
)

// NetworkManager owns the HTTP client used for provider REST calls.
type NetworkManager struct {
	Config *models.MReferenceConfig
	Client *http.Client
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewNetworkManager(cfg *models.MReferenceConfig, log *logger.Logger) (*NetworkManager, error) {
	nm := &NetworkManager{
		Config: cfg,
		Logger: log,
	}
	client, err := nm.createClient()
	if err != nil {
		return nil, err
	}
	nm.Client = client
	return nm, nil
}

// -----------------------------------------------------------------------------

func (nm *NetworkManager) createClient() (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	if nm.Config.Proxy != "" {
		proxyStr := FormatProxy(nm.Config.Proxy)
		if !ValidateProxy(proxyStr) {
			return nil, fmt.Errorf("invalid reference proxy %q", nm.Config.Proxy)
		}
		proxyURL, _ := url.Parse(proxyStr)
		transport.Proxy = http.ProxyURL(proxyURL)
		if nm.Logger != nil {
			nm.Logger.Info("Reference requests routed through proxy %s", proxyURL.Host)
		}
	}

	timeout := time.Duration(nm.Config.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// -----------------------------------------------------------------------------

// ValidateProxy checks if a proxy string is roughly valid.
func ValidateProxy(proxyStr string) bool {
	u, err := url.Parse(proxyStr)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "socks5"
}

// -----------------------------------------------------------------------------

// FormatProxy ensures the proxy has a scheme.
func FormatProxy(proxyStr string) string {
	proxyStr = strings.TrimSpace(proxyStr)
	if !strings.Contains(proxyStr, "://") {
		return "http://" + proxyStr
	}
	return proxyStr
}
