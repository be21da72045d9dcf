package natmapper

import "time"

// Protocol timeout budgets (spec §4.4/§4.5/§4.6/§5).
const (
	pmpTimeout = 2 * time.Second
	pcpTimeout = 2 * time.Second
)

// Well-known probe ports used to decide whether a protocol is usable
// (spec §4.1).
const (
	probePortPMP  = 55555
	probePortPCP  = 55556
	probePortUPnP = 55557
)

// pmpPcpPort is the UDP port NAT-PMP and PCP both listen on at the gateway.
const pmpPcpPort = 5351

// wildcardLifetime is what a zero requested lifetime is normalized to on
// the PMP/PCP wire; the renewal layer re-interprets zero as "refresh
// indefinitely" (spec §4.1). UPnP sends zero as is (a static mapping).
const wildcardLifetime = 24 * time.Hour

// indefiniteRenewInterval is how often an indefinite (requestedLifetime==0)
// PMP/PCP mapping is re-asserted (spec §4.7).
const indefiniteRenewInterval = 24 * time.Hour

// defaultSweepInterval is the default periodic roam-detection sweep period
// (spec §4.7, §6 renewInterval).
const defaultSweepInterval = 10 * time.Minute

// routerSeedList is the bundled set of common residential gateway
// addresses, probed alongside whatever the Network probe and router-IP
// cache have accumulated (spec §6).
var routerSeedList = []string{
	"192.168.0.1",
	"192.168.1.1",
	"192.168.1.254",
	"192.168.2.1",
	"192.168.3.1",
	"192.168.4.1",
	"192.168.5.1",
	"192.168.8.1",
	"192.168.10.1",
	"192.168.11.1",
	"192.168.20.1",
	"192.168.50.1",
	"192.168.100.1",
	"192.168.123.254",
	"192.168.254.254",
	"192.168.0.254",
	"10.0.0.1",
	"10.0.0.138",
	"10.0.1.1",
	"10.1.1.1",
	"10.10.1.1",
}
