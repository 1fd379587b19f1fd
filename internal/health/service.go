package health

import (
	"github.com/sirupsen/logrus"

	"github.com/privacysandbox/pbs/internal/metrics"
)

// Service periodically reports the memory and filesystem probe results
// through a metrics.Router, logging each failure via a structured
// JSON-formatted logger.
type Service struct {
	memory     *MemoryProbe
	filesystem *FilesystemProbe
	log        logrus.FieldLogger
	router     *metrics.Router

	memoryGauge     metrics.Gauge
	filesystemGauge metrics.Gauge
}

// NewService wires the two probes to the given metrics router and logger.
// A nil log defaults to a disabled logrus logger, matching the rest of the
// codebase's convention for optional loggers.
func NewService(memory *MemoryProbe, filesystem *FilesystemProbe, router *metrics.Router, log logrus.FieldLogger) *Service {
	if log == nil {
		disabled := logrus.New()
		disabled.SetOutput(nopWriter{})
		log = disabled
	}
	return &Service{
		memory:          memory,
		filesystem:      filesystem,
		log:             log,
		router:          router,
		memoryGauge:     router.Gauge("memory_usage_percent"),
		filesystemGauge: router.Gauge("filesystem_usage_percent"),
	}
}

// Healthy reports the service's overall health: both probes must report
// healthy (a disabled probe always does). Probe errors are logged and
// treated as unhealthy.
func (s *Service) Healthy() bool {
	memOK := s.checkMemory()
	fsOK := s.checkFilesystem()
	return memOK && fsOK
}

func (s *Service) checkMemory() bool {
	usage, err := s.memory.UsagePercent()
	if err != nil {
		s.log.WithError(err).Error("memory probe failed")
		return s.memory.disabled
	}
	s.memoryGauge.Set(usage)
	return usage <= MaxMemoryUsagePercent || s.memory.disabled
}

func (s *Service) checkFilesystem() bool {
	usage, err := s.filesystem.UsagePercent()
	if err != nil {
		s.log.WithError(err).Error("filesystem probe failed")
		return s.filesystem.disabled
	}
	s.filesystemGauge.Set(usage)
	return usage <= s.filesystem.maxUsagePercent || s.filesystem.disabled
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
