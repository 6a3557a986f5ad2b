package traffic

import "strconv"

// QdiscConfig describes a traffic control qdisc operation.
type QdiscConfig struct {
	Device  string
	Root    bool
	Parent  string
	Handle  string
	Kind    string
	Options []string
}

func (qc QdiscConfig) args(verb string, withKind bool) []string {
	args := []string{"qdisc", verb, "dev", qc.Device}

	switch {
	case qc.Root:
		args = append(args, "root")
	case qc.Parent != "":
		args = append(args, "parent", qc.Parent)
	}

	if qc.Handle != "" {
		args = append(args, "handle", qc.Handle)
	}
	if !withKind {
		if qc.Kind == "ingress" {
			args = append(args, qc.Kind)
		}
		return args
	}

	if qc.Kind != "" {
		args = append(args, qc.Kind)
	}
	if len(qc.Options) > 0 {
		args = append(args, qc.Options...)
	}
	return args
}

// AddArgs renders the tc arguments required to add the qdisc.
func (qc QdiscConfig) AddArgs() []string { return qc.args("add", true) }

// ChangeArgs renders the tc arguments required to change the qdisc in place.
func (qc QdiscConfig) ChangeArgs() []string { return qc.args("change", true) }

// DeleteArgs renders the tc arguments required to delete the qdisc.
func (qc QdiscConfig) DeleteArgs() []string { return qc.args("del", false) }

// FilterConfig holds tc filter parameters.
type FilterConfig struct {
	Device   string
	Parent   string
	Protocol string
	Kind     string
	Match    []string
	Actions  []string
}

// AddArgs renders the tc arguments to add a filter.
func (fc FilterConfig) AddArgs() []string {
	args := []string{
		"filter", "add",
		"dev", fc.Device,
		"parent", fc.Parent,
		"protocol", fc.Protocol,
		fc.Kind,
	}
	args = append(args, fc.Match...)
	args = append(args, fc.Actions...)
	return args
}

func tbfQdiscConfig(device string, p Profile) QdiscConfig {
	return QdiscConfig{
		Device: device,
		Root:   true,
		Handle: RootHandle,
		Kind:   "tbf",
		Options: []string{
			"rate", p.Rate.String(),
			"burst", p.Burst.String(),
			"latency", renderDuration(p.Latency),
		},
	}
}

func netemQdiscConfig(device string, p Profile) QdiscConfig {
	return QdiscConfig{
		Device: device,
		Parent: NetemParent,
		Handle: NetemHandle,
		Kind:   "netem",
		Options: []string{
			"delay", renderDuration(p.Delay),
			"limit", strconv.Itoa(p.Limit),
		},
	}
}

func rootQdiscConfig(device string) QdiscConfig {
	return QdiscConfig{Device: device, Root: true}
}

func ingressQdiscConfig(device string) QdiscConfig {
	return QdiscConfig{
		Device: device,
		Handle: IngressHandle,
		Kind:   "ingress",
	}
}

// redirectFilterConfig matches every packet of protocol and mirrors it to ifb.
func redirectFilterConfig(device, protocol, ifb string) FilterConfig {
	return FilterConfig{
		Device:   device,
		Parent:   IngressHandle,
		Protocol: protocol,
		Kind:     "u32",
		Match:    []string{"match", "u32", "0", "0"},
		Actions:  []string{"action", "mirred", "egress", "redirect", "dev", ifb},
	}
}
