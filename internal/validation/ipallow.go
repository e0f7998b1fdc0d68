// Package validation содержит чистые функции проверки входных данных.
package validation

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// IPAllowList проверяет принадлежность адреса набору CIDR-диапазонов (IPv4 и IPv6).
type IPAllowList struct {
	prefixes []netip.Prefix
}

// NewIPAllowList разбирает диапазоны. Одиночный адрес без маски трактуется как /32 или /128.
func NewIPAllowList(ranges []string) (*IPAllowList, error) {
	l := &IPAllowList{prefixes: make([]netip.Prefix, 0, len(ranges))}

	for _, raw := range ranges {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("parse range %q: %w", raw, err)
			}
			l.prefixes = append(l.prefixes, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("parse address %q: %w", raw, err)
		}
		addr = addr.Unmap()
		l.prefixes = append(l.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return l, nil
}

// Contains сообщает, входит ли адрес в один из диапазонов. Некорректный адрес не входит никуда.
func (l *IPAllowList) Contains(ip string) bool {
	if l == nil {
		return false
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP определяет адрес клиента. Заголовки X-Forwarded-For и X-Real-IP учитываются
// только если непосредственный собеседник входит в список доверенных прокси.
// X-Forwarded-For читается справа налево: адреса доверенных прокси пропускаются,
// возвращается первый недоверенный. Левые элементы цепочки задаёт сам клиент.
func ClientIP(remoteAddr, forwardedFor, realIP string, trustedProxies *IPAllowList) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}

	if trustedProxies == nil || !trustedProxies.Contains(host) {
		return host
	}

	if forwardedFor != "" {
		hops := strings.Split(forwardedFor, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" || trustedProxies.Contains(hop) {
				continue
			}
			return hop
		}
	}
	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}

	return host
}
