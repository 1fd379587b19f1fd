// Package health implements the memory and filesystem capacity probes of
// spec section 4.11, independently disable-able via configuration.
package health

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// MaxMemoryUsagePercent is the threshold above which the memory probe
// reports unhealthy, per spec 4.11.
const MaxMemoryUsagePercent = 95.0

// MemoryProbe reports whether the host's memory usage is within budget by
// parsing /proc/meminfo's MemTotal and MemAvailable fields.
type MemoryProbe struct {
	meminfoPath string
	disabled    bool
}

// NewMemoryProbe constructs a MemoryProbe reading from the standard
// /proc/meminfo path. An empty meminfoPath uses that default.
func NewMemoryProbe(meminfoPath string, disabled bool) *MemoryProbe {
	if meminfoPath == "" {
		meminfoPath = "/proc/meminfo"
	}
	return &MemoryProbe{meminfoPath: meminfoPath, disabled: disabled}
}

// UsagePercent returns the current memory usage percentage, or an error
// naming the stage at which /proc/meminfo parsing failed.
func (p *MemoryProbe) UsagePercent() (float64, error) {
	f, err := os.Open(p.meminfoPath)
	if err != nil {
		return 0, pbserrors.New(pbserrors.CouldNotOpenMeminfoFile, "could not open meminfo file %q: %v", p.meminfoPath, err)
	}
	defer f.Close()

	var total, available uint64
	var haveTotal, haveAvailable bool

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			v, err := parseMeminfoLine(line)
			if err != nil {
				return 0, err
			}
			total, haveTotal = v, true
		case strings.HasPrefix(line, "MemAvailable:"):
			v, err := parseMeminfoLine(line)
			if err != nil {
				return 0, err
			}
			available, haveAvailable = v, true
		}
		if haveTotal && haveAvailable {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, pbserrors.New(pbserrors.CouldNotOpenMeminfoFile, "could not read meminfo file %q: %v", p.meminfoPath, err)
	}
	if !haveTotal || !haveAvailable {
		return 0, pbserrors.New(pbserrors.CouldNotFindMemoryInfo, "could not find MemTotal/MemAvailable in %q", p.meminfoPath)
	}
	if total == 0 {
		return 0, pbserrors.New(pbserrors.CouldNotFindMemoryInfo, "meminfo reports zero MemTotal")
	}

	used := total - available
	return float64(used) / float64(total) * 100.0, nil
}

// Healthy reports whether usage is within MaxMemoryUsagePercent. A disabled
// probe always reports healthy.
func (p *MemoryProbe) Healthy() (bool, error) {
	if p.disabled {
		return true, nil
	}
	usage, err := p.UsagePercent()
	if err != nil {
		return false, err
	}
	return usage <= MaxMemoryUsagePercent, nil
}

func parseMeminfoLine(line string) (uint64, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, pbserrors.New(pbserrors.CouldNotParseMeminfoLine, "could not parse meminfo line %q", line)
	}
	v, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, pbserrors.New(pbserrors.CouldNotParseMeminfoLine, "could not parse meminfo line %q: %v", line, err)
	}
	return v, nil
}

// FilesystemProbe reports whether a mount point has sufficient free
// capacity remaining.
type FilesystemProbe struct {
	path            string
	maxUsagePercent float64
	disabled        bool
}

// NewFilesystemProbe constructs a FilesystemProbe for the given path,
// unhealthy once usage exceeds maxUsagePercent.
func NewFilesystemProbe(path string, maxUsagePercent float64, disabled bool) *FilesystemProbe {
	return &FilesystemProbe{path: path, maxUsagePercent: maxUsagePercent, disabled: disabled}
}

// UsagePercent returns the current filesystem usage percentage for the
// probe's configured path.
func (p *FilesystemProbe) UsagePercent() (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(p.path, &stat); err != nil {
		return 0, pbserrors.New(pbserrors.InvalidReadFileSystemInfo, "invalid read filesystem info for %q: %v", p.path, err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	if total == 0 || free == 0 {
		return 0, pbserrors.New(pbserrors.InvalidReadFileSystemInfo, "filesystem %q reports zero capacity or zero available", p.path)
	}
	used := total - free
	return float64(used) / float64(total) * 100.0, nil
}

// Healthy reports whether usage is within the configured threshold. A
// disabled probe always reports healthy.
func (p *FilesystemProbe) Healthy() (bool, error) {
	if p.disabled {
		return true, nil
	}
	usage, err := p.UsagePercent()
	if err != nil {
		return false, err
	}
	return usage <= p.maxUsagePercent, nil
}
