// Package keys builds the Redis key names the registry coordination plane
// reads and writes, grounded 1:1 on RPD_Common.hpp from the original
// RegisterCenter implementation.
package keys

import (
	"strconv"
	"strings"
)

const (
	prefixServiceInfo          = "sm_service_info"
	prefixServiceTypeAddr      = "sm_service_type_addr_list"
	prefixServiceTypeLevelAddr = "sm_service_type_level_addr_list"
	prefixServicePing          = "sm_service_ping"
	prefixServiceInfoLock      = "sm_service_info_lock"
)

// ServiceInfo returns the hash key holding every instance record for a
// group, keyed by addr within the hash.
func ServiceInfo(group string) string {
	return prefixServiceInfo + "_" + group
}

// ServiceTypeAddrList returns the set key holding the addrs of every
// instance of a given service type within a group.
func ServiceTypeAddrList(group string, serviceType int) string {
	return join(prefixServiceTypeAddr, group, serviceType)
}

// ServiceTypeLevelAddrList returns the set key holding the addrs of every
// instance that declares a dependency on a given service type within a
// group.
func ServiceTypeLevelAddrList(group string, serviceType int) string {
	return join(prefixServiceTypeLevelAddr, group, serviceType)
}

// ServicePing returns the sorted-set key holding the last-heartbeat
// timestamp for every addr within a group.
func ServicePing(group string) string {
	return prefixServicePing + "_" + group
}

// ServiceInfoLock returns the per-(group, addr) advisory lock key. ':' and
// '.' in addr are replaced with '_' so the key has no characters Redis
// client libraries treat specially in cluster slot hashing.
func ServiceInfoLock(group, addr string) string {
	sanitized := strings.NewReplacer(":", "_", ".", "_").Replace(addr)
	return prefixServiceInfoLock + "_" + group + "_" + sanitized
}

func join(prefix, group string, serviceType int) string {
	return prefix + "_" + group + "_" + strconv.Itoa(serviceType)
}
