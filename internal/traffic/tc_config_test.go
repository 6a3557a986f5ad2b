package traffic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTbfArgs(t *testing.T) {
	profile := testProfile(t, "20mbit")

	assert.Equal(t,
		[]string{"qdisc", "add", "dev", "eth0", "root", "handle", "1:", "tbf", "rate", "20mbit", "burst", "125k", "latency", "50ms"},
		tbfQdiscConfig("eth0", profile).AddArgs())
	assert.Equal(t,
		[]string{"qdisc", "change", "dev", "ifb0", "root", "handle", "1:", "tbf", "rate", "20mbit", "burst", "125k", "latency", "50ms"},
		tbfQdiscConfig("ifb0", profile).ChangeArgs())
}

func TestNetemArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"qdisc", "add", "dev", "eth0", "parent", "1:1", "handle", "10:", "netem", "delay", "50ms", "limit", "1000"},
		netemQdiscConfig("eth0", testProfile(t, "5mbit")).AddArgs())
}

func TestDeleteArgs(t *testing.T) {
	assert.Equal(t, []string{"qdisc", "del", "dev", "eth0", "root"}, rootQdiscConfig("eth0").DeleteArgs())
	assert.Equal(t, []string{"qdisc", "del", "dev", "eth0", "handle", "ffff:", "ingress"}, ingressQdiscConfig("eth0").DeleteArgs())
	assert.Equal(t, []string{"qdisc", "add", "dev", "eth0", "handle", "ffff:", "ingress"}, ingressQdiscConfig("eth0").AddArgs())
}

func TestRedirectFilterArgs(t *testing.T) {
	assert.Equal(t,
		[]string{
			"filter", "add", "dev", "eth0", "parent", "ffff:", "protocol", "ipv6", "u32",
			"match", "u32", "0", "0", "action", "mirred", "egress", "redirect", "dev", "ifb0",
		},
		redirectFilterConfig("eth0", "ipv6", "ifb0").AddArgs())
}
