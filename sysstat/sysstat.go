// Package sysstat collects the node metrics that fill a status
// snapshot's system_status payload. The payload is opaque to the
// liveness logic; whatever can be read cheaply from /proc is reported,
// whatever can't is silently left out.
package sysstat

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// Collect returns a point-in-time system status payload.
func Collect() map[string]interface{} {
	status := map[string]interface{}{}
	if cpu := cpuStatus(); cpu != nil {
		status["cpu"] = cpu
	}
	if mem := memoryStatus(); mem != nil {
		status["memory"] = mem
	}
	if disk := diskStatus(); disk != nil {
		status["disk"] = disk
	}
	if procs := processStatus(); procs != nil {
		status["processes"] = procs
	}
	return status
}

// cpuStatus estimates cpu usage from the one minute load average
// normalized by core count.
func cpuStatus() map[string]interface{} {
	b, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return nil
	}
	parts := strings.Fields(string(b))
	if len(parts) == 0 {
		return nil
	}
	load, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return nil
	}
	cpus := float64(runtime.NumCPU())
	if cpus <= 0 {
		cpus = 1
	}
	pct := load / cpus * 100
	if pct > 100 {
		pct = 100
	}
	return map[string]interface{}{
		"load":    load,
		"percent": pct,
	}
}

func memoryStatus() map[string]interface{} {
	b, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return nil
	}
	var totalKB, availKB float64
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB, _ = strconv.ParseFloat(fields[1], 64)
		case "MemAvailable:":
			availKB, _ = strconv.ParseFloat(fields[1], 64)
		}
	}
	if totalKB <= 0 {
		return nil
	}
	usedKB := totalKB - availKB
	return map[string]interface{}{
		"total":   int64(totalKB) * 1024,
		"used":    int64(usedKB) * 1024,
		"percent": usedKB / totalKB * 100,
	}
}

// diskStatus reports usage of real filesystems from /proc/mounts.
func diskStatus() []map[string]interface{} {
	b, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return nil
	}
	partitions := []map[string]interface{}{}
	for _, line := range strings.Split(string(b), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		device, mountpoint, fstype := fields[0], fields[1], fields[2]
		if !strings.HasPrefix(device, "/dev/") {
			continue
		}
		var st syscall.Statfs_t
		err := syscall.Statfs(mountpoint, &st)
		if err != nil || st.Blocks == 0 {
			continue
		}
		total := int64(st.Blocks) * st.Bsize
		free := int64(st.Bavail) * st.Bsize
		used := total - free
		partitions = append(partitions, map[string]interface{}{
			"type":       fstype,
			"device":     device,
			"mountpoint": mountpoint,
			"total":      total,
			"used":       used,
			"percent":    float64(used) / float64(total) * 100,
		})
	}
	if len(partitions) == 0 {
		return nil
	}
	return partitions
}

// processStatus reports this process and its direct children.
func processStatus() []map[string]interface{} {
	self := os.Getpid()
	procs := []map[string]interface{}{{
		"pid":  self,
		"ppid": os.Getppid(),
		"cmd":  cmdline(self),
	}}
	for _, pid := range childrenOf(self) {
		procs = append(procs, map[string]interface{}{
			"pid":  pid,
			"ppid": self,
			"cmd":  cmdline(pid),
		})
	}
	return procs
}

func cmdline(pid int) string {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", pid))
	if err != nil {
		return ""
	}
	return strings.TrimRight(strings.ReplaceAll(string(b), "\x00", " "), " ")
}

// childrenOf scans /proc for processes whose parent is pid.
func childrenOf(pid int) []int {
	entries, err := filepath.Glob("/proc/[0-9]*/stat")
	if err != nil {
		return nil
	}
	children := []int{}
	for _, stat := range entries {
		b, err := os.ReadFile(stat)
		if err != nil {
			continue
		}
		// stat format: pid (comm) state ppid ...
		// comm may contain spaces, so cut after the closing paren.
		s := string(b)
		i := strings.LastIndexByte(s, ')')
		if i < 0 || i+2 >= len(s) {
			continue
		}
		fields := strings.Fields(s[i+2:])
		if len(fields) < 2 {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil || ppid != pid {
			continue
		}
		child, err := strconv.Atoi(strings.TrimPrefix(filepath.Dir(stat), "/proc/"))
		if err != nil {
			continue
		}
		children = append(children, child)
	}
	return children
}
