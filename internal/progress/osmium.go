// Package progress parses the stdout of the external geospatial tools
// (osmium, osm2pgsql) into structured updates. The matching patterns live
// here, away from subprocess plumbing, so they can be unit-tested against
// captured tool output.
package progress

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	percentPattern = regexp.MustCompile(`(\d+)%`)
	countsPattern  = regexp.MustCompile(`(\d+)/(\d+)`)
)

// OsmiumUpdate is a consolidated progress report parsed from osmium output.
type OsmiumUpdate struct {
	Percent   int
	Current   int64
	Total     int64
	HasCounts bool
	Rate      float64 // objects per second, 0 when counts are unavailable
	Elapsed   time.Duration
}

// OsmiumParser extracts percentage markers from osmium --progress output
// and throttles reports to one per 10 percentage points.
//
// osmium progress lines look like:
//
//	[===>    ] 45% 1234567/2345678
//	[========] 100%
type OsmiumParser struct {
	lastReportedPercent int
	startTime           time.Time
}

// NewOsmiumParser creates a parser; the throttle window starts now.
func NewOsmiumParser() *OsmiumParser {
	return &OsmiumParser{
		lastReportedPercent: -1,
		startTime:           time.Now(),
	}
}

// ParseLine parses one line of osmium output. It returns a consolidated
// update and true when the line crosses the next 10-point boundary;
// otherwise false.
func (p *OsmiumParser) ParseLine(line string) (OsmiumUpdate, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.Contains(line, "%") {
		return OsmiumUpdate{}, false
	}

	percentMatch := percentPattern.FindStringSubmatch(line)
	if percentMatch == nil {
		return OsmiumUpdate{}, false
	}
	percent, err := strconv.Atoi(percentMatch[1])
	if err != nil {
		return OsmiumUpdate{}, false
	}

	if percent < p.lastReportedPercent+10 {
		return OsmiumUpdate{}, false
	}
	p.lastReportedPercent = percent

	update := OsmiumUpdate{
		Percent: percent,
		Elapsed: time.Since(p.startTime),
	}

	if countsMatch := countsPattern.FindStringSubmatch(line); countsMatch != nil {
		current, currErr := strconv.ParseInt(countsMatch[1], 10, 64)
		total, totalErr := strconv.ParseInt(countsMatch[2], 10, 64)
		if currErr == nil && totalErr == nil {
			update.Current = current
			update.Total = total
			update.HasCounts = true
			if secs := update.Elapsed.Seconds(); secs > 0 {
				update.Rate = float64(current) / secs
			}
		}
	}

	return update, true
}

// LastReportedPercent returns the highest percent reported so far, -1 when
// nothing has been reported.
func (p *OsmiumParser) LastReportedPercent() int {
	return p.lastReportedPercent
}
