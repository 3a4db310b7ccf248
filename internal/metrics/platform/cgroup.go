// Package platform reports host/container resource usage for the
// metrics collector. The cgroup memory limit is exposed as a metric for
// capacity planning; it does not feed any admission or rejection
// policy.
package platform

import (
	"os"
	"strconv"
	"strings"
)

// MemoryLimitBytes returns the container memory limit from the cgroup
// filesystem: cgroup v2 first (/sys/fs/cgroup/memory.max), falling back
// to cgroup v1. Returns 0 with a nil error when no cgroup file is found
// or cgroup v2 reports "max". A cgroup v1 value is returned as read, so
// an unconstrained v1 container reports the kernel's very large no-limit
// value rather than 0.
func MemoryLimitBytes() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			return strconv.ParseInt(limitStr, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		return strconv.ParseInt(limitStr, 10, 64)
	}

	return 0, nil
}
