package dfs

import "github.com/oleksandr/bonjour"

// RegisterDiscovery advertises the router over mDNS/Bonjour under
// _dfsrouter._tcp so clients on the LAN can find it without a hardcoded
// address, the same way cmd/mobius-hotline-server registers its Hotline
// server with bonjour.Register. The returned server must be Shutdown when
// the router stops; RegisterDiscovery is a no-op error source only if the
// local mDNS stack can't bind, which is never fatal to the router itself.
func RegisterDiscovery(name string, port int) (*bonjour.Server, error) {
	return bonjour.Register(name, "_dfsrouter._tcp", "", port, []string{"txtv=1", "app=dfs-router"}, nil)
}
