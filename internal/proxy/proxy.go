// Package proxy keeps a scored pool of validated HTTP proxies harvested from
// public feeds.
package proxy

import (
	"net"
	"strconv"
	"time"
)

// DefaultLatencyCeiling is the slowest response time a healthy proxy may have.
const DefaultLatencyCeiling = 10 * time.Second

// unhealthyFails is the failure count at which a proxy is dropped.
const unhealthyFails = 3

type Proxy struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Protocol     string        `json:"protocol"`
	SuccessCount int           `json:"success_count"`
	FailCount    int           `json:"fail_count"`
	ResponseTime time.Duration `json:"response_time"`
	LastChecked  time.Time     `json:"last_checked"`
}

func (p Proxy) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Proxy) URL() string {
	proto := p.Protocol
	if proto == "" {
		proto = "http"
	}
	return proto + "://" + p.Addr()
}

func (p Proxy) Healthy() bool {
	return p.HealthyWithin(DefaultLatencyCeiling)
}

// HealthyWithin reports fewer than three failures and a response time no
// slower than ceiling.
func (p Proxy) HealthyWithin(ceiling time.Duration) bool {
	return p.FailCount < unhealthyFails && p.ResponseTime <= ceiling
}

// Score ranks proxies: 100, minus 20 per failure, plus 5 per success up to 30,
// minus 20 above 5s latency or 10 above 2s. Never negative.
func (p Proxy) Score() int {
	score := 100 - 20*p.FailCount + min(5*p.SuccessCount, 30)

	switch {
	case p.ResponseTime > 5*time.Second:
		score -= 20
	case p.ResponseTime > 2*time.Second:
		score -= 10
	}
	return max(score, 0)
}
