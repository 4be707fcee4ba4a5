// Package security は外部AIプロバイダーへの送信経路の保護を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// EgressGuard はAIプロバイダーへの送信先を公開HTTPSエンドポイントに限定する。
type EgressGuard struct {
	allowedPorts []int
}

// NewEgressGuard はEgressGuardを生成する。ポート未指定の場合は443のみ許可する。
func NewEgressGuard(allowedPorts ...int) *EgressGuard {
	if len(allowedPorts) == 0 {
		allowedPorts = []int{443}
	}
	return &EgressGuard{allowedPorts: allowedPorts}
}

// internalNetworks は送信を禁止するネットワーク範囲。
var internalNetworks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // メタデータIPを含む
		"0.0.0.0/8",
		"100.64.0.0/10",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	} {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		internalNetworks = append(internalNetworks, network)
	}
}

// NewClient は送信先を検証するHTTPクライアントを生成する。
// 接続時にDNS解決後のIPアドレスを検証するため、名前解決で内部アドレスに
// 向けられた場合も接続しない。
func (g *EgressGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(g.allowedPorts...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL は起動時に送信先のベースURLを静的に検証する。
// httpsのみを許可し、内部アドレスやlocalhostを拒否する。
func (g *EgressGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("disallowed scheme %q: only https is allowed", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil && isInternalIP(ip) {
		return fmt.Errorf("blocked IP address: %s", ip)
	}
	return nil
}

func isInternalIP(ip net.IP) bool {
	for _, network := range internalNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
