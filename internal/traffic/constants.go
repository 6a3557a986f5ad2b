package traffic

const (
	// IngressHandle is the tc handle identifier reserved for ingress qdiscs.
	IngressHandle = "ffff:"
	// RootHandle is the handle of the tbf rate limiter.
	RootHandle = "1:"
	// NetemParent is the class of the tbf the netem qdisc attaches to.
	NetemParent = "1:1"
	// NetemHandle is the handle of the netem child qdisc.
	NetemHandle = "10:"
	// DefaultIFBDevice is the virtual device that hosts ingress shaping.
	DefaultIFBDevice = "ifb0"
)

// Failure messages tc and ip print when the object to delete is already gone.
var absentMarkers = []string{
	"No such file or directory",
	"Cannot delete qdisc with handle of zero",
	"Cannot find device",
	"Invalid handle",
}
