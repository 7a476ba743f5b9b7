package poller

import (
	"time"

	"github.com/Dexploarer/hyper-forge-sub006/internal/domain"
)

// Poll intervals per vendor operation.
const (
	ConversionInterval = 10 * time.Second
	RetextureInterval  = 5 * time.Second
	RiggingInterval    = 5 * time.Second
)

var qualityTimeouts = map[domain.Quality]time.Duration{
	domain.QualityStandard: 5 * time.Minute,
	domain.QualityHigh:     10 * time.Minute,
	domain.QualityUltra:    20 * time.Minute,
}

// TimeoutForQuality returns the poll timeout for a quality tier. Unknown
// tiers get the standard timeout.
func TimeoutForQuality(q domain.Quality) time.Duration {
	if d, ok := qualityTimeouts[q]; ok {
		return d
	}
	return qualityTimeouts[domain.QualityStandard]
}
