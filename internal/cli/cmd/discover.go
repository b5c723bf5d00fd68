package cmd

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/unp/pkg/cache"
	"github.com/strand-protocol/unp/pkg/engine"
)

var (
	discoverNetwork string
	discoverPorts   []int
	discoverWorkers int
	discoverTimeout time.Duration
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Sweep a local IPv4 /24 for reachable UNP peers",
	Long: `discover probes every host in an IPv4 /24 across one or more ports
with a discovery-hello (type 'h'), bounding the number of in-flight probes
the way strandapi's server bounds in-flight frame handlers. A probe whose
ack arrives before --timeout marks that host:port as a live UNP peer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		network := discoverNetwork
		if network == "" {
			detected, err := localIPv4Network()
			if err != nil {
				return fmt.Errorf("detect local network: %w", err)
			}
			network = detected
		}
		ports := discoverPorts
		if len(ports) == 0 {
			ports = cfg.DiscoverPorts
		}
		workers := discoverWorkers
		if workers == 0 {
			workers = cfg.DiscoverWorkers
		}

		e, err := engine.StartClient(engine.Options{
			ProtocolSignature: cfg.Signature(),
			AckResendTimeout:  50 * time.Millisecond,
			AckForgetTimeout:  discoverTimeout,
			Logger:            &logger,
		})
		if err != nil {
			return fmt.Errorf("start client: %w", err)
		}
		defer e.Close()

		// seen dedupes re-probes within one sweep: a host:port is marked
		// when its probe is launched (whether or not it turns out live); one
		// still in the freshest sector is skipped, but one that has aged
		// past sector 0 (rotated since its last probe) is re-checked, per
		// spec.md §9's age-aware re-probe heuristic.
		seen := cache.New[bool](discoverTimeout)
		defer seen.Close()

		var mu sync.Mutex
		var live []string
		var wg sync.WaitGroup
		sem := make(chan struct{}, workers)

		for _, addr := range hostsIn(network) {
			for _, port := range ports {
				target := fmt.Sprintf("%s:%d", addr, port)
				if sector, ok := seen.SectorOf(target); ok && sector == 0 {
					continue
				}
				seen.Set(target, true)

				wg.Add(1)
				sem <- struct{}{}
				go func(target string) {
					defer wg.Done()
					defer func() { <-sem }()

					peer, err := net.ResolveUDPAddr("udp", target)
					if err != nil {
						return
					}
					ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
					defer cancel()
					if err := e.SendDiscoveryHello(ctx, peer, engine.SendOptions{WantAck: true, Retries: 1}); err != nil {
						return
					}
					mu.Lock()
					live = append(live, target)
					mu.Unlock()
				}(target)
			}
		}
		wg.Wait()

		sort.Strings(live)
		if len(live) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "[session %s] no UNP peers found\n", sessionID)
			return nil
		}
		for _, addr := range live {
			fmt.Fprintf(cmd.OutOrStdout(), "[session %s] %s\n", sessionID, addr)
		}
		return nil
	},
}

// localIPv4Network returns the first non-loopback IPv4 /24 this host is on,
// as a CIDR string ("a.b.c.0/24").
func localIPv4Network() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil {
			continue
		}
		return fmt.Sprintf("%d.%d.%d.0/24", ip4[0], ip4[1], ip4[2]), nil
	}
	return "", fmt.Errorf("no non-loopback IPv4 interface found")
}

// hostsIn enumerates every usable host address (.2-.254) in an IPv4 /24
// given as "a.b.c.0/24", matching the scenario's y in 2..254 range ( .1 is
// conventionally the subnet gateway, not a host worth probing).
func hostsIn(cidr string) []string {
	base := strings.TrimSuffix(cidr, ".0/24")
	hosts := make([]string, 0, 253)
	for i := 2; i <= 254; i++ {
		hosts = append(hosts, fmt.Sprintf("%s.%d", base, i))
	}
	return hosts
}

func init() {
	discoverCmd.Flags().StringVar(&discoverNetwork, "network", "", "IPv4 /24 CIDR to sweep (default: auto-detected local subnet)")
	discoverCmd.Flags().IntSliceVar(&discoverPorts, "ports", nil, "ports to probe (default: config discover_ports)")
	discoverCmd.Flags().IntVar(&discoverWorkers, "workers", 0, "bound on in-flight probes (default: config discover_workers)")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 300*time.Millisecond, "per-probe ack deadline")
	rootCmd.AddCommand(discoverCmd)
}
