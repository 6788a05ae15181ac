package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Phase is a named osm2pgsql processing stage.
type Phase string

const (
	PhaseReading   Phase = "Reading"
	PhaseNodes     Phase = "Nodes"
	PhaseWays      Phase = "Ways"
	PhaseRelations Phase = "Relations"
	PhaseIndexing  Phase = "Indexing"
)

// EventKind discriminates Osm2pgsqlEvent variants.
type EventKind int

const (
	// EventPhase marks a transition to a new processing phase.
	EventPhase EventKind = iota
	// EventThroughput carries a parsed count/rate sample.
	EventThroughput
	// EventStats is a completed-object statistics line.
	EventStats
	// EventWarning is a WARNING or ERROR line from the tool.
	EventWarning
)

// Osm2pgsqlEvent is one structured observation parsed from a line of
// osm2pgsql output.
type Osm2pgsqlEvent struct {
	Kind       EventKind
	Phase      Phase   // EventPhase
	ObjectType string  // EventThroughput: Node, Way or Relation
	CountK     float64 // EventThroughput: thousands of objects processed
	RateK      float64 // EventThroughput: thousands of objects per second
	Line       string  // EventStats / EventWarning: the raw line
}

// throughputPattern matches samples like "Node(123456k 45.6k/s)".
var throughputPattern = regexp.MustCompile(`(Node|Way|Relation)\((\d+\.?\d*)k\s+(\d+\.?\d*)k/s\)`)

// Osm2pgsqlParser detects phase transitions and throughput samples in
// osm2pgsql output. Typical lines:
//
//	Reading in file: /data/filtered/europe-roads.osm.pbf
//	Processing: Node(123456k 45.6k/s) Way(0k 0.00k/s)
//	Going over pending ways (using 8 threads)
//	Clustering table 'planet_osm_line' by geometry...
//	Node stats: total(12345678), max(12345678)
type Osm2pgsqlParser struct {
	phase Phase
}

// NewOsm2pgsqlParser creates a parser positioned in the Reading phase.
func NewOsm2pgsqlParser() *Osm2pgsqlParser {
	return &Osm2pgsqlParser{phase: PhaseReading}
}

// Phase returns the current processing phase.
func (p *Osm2pgsqlParser) Phase() Phase {
	return p.phase
}

// ParseLine parses one line of osm2pgsql output, returning zero or more
// events. A single line can yield both a phase transition and a
// throughput sample.
func (p *Osm2pgsqlParser) ParseLine(line string) []Osm2pgsqlEvent {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var events []Osm2pgsqlEvent

	// "Reading in file" is always reported, even though Reading is the
	// initial phase; the other phases only report on transition.
	if next, ok := detectPhase(line); ok && (next != p.phase || next == PhaseReading) {
		p.phase = next
		events = append(events, Osm2pgsqlEvent{Kind: EventPhase, Phase: next})
	}

	if match := throughputPattern.FindStringSubmatch(line); match != nil {
		countK, _ := strconv.ParseFloat(match[2], 64)
		rateK, _ := strconv.ParseFloat(match[3], 64)
		events = append(events, Osm2pgsqlEvent{
			Kind:       EventThroughput,
			ObjectType: match[1],
			CountK:     countK,
			RateK:      rateK,
		})
		return events
	}

	if strings.Contains(strings.ToLower(line), "stats: total") {
		events = append(events, Osm2pgsqlEvent{Kind: EventStats, Line: line})
		return events
	}

	upper := strings.ToUpper(line)
	if strings.Contains(upper, "WARNING") || strings.Contains(upper, "ERROR") {
		events = append(events, Osm2pgsqlEvent{Kind: EventWarning, Line: line})
	}

	return events
}

func detectPhase(line string) (Phase, bool) {
	switch {
	case strings.Contains(line, "Reading in file:"):
		return PhaseReading, true
	case strings.Contains(line, "Processing: Node") || strings.Contains(line, "Node("):
		return PhaseNodes, true
	case strings.Contains(line, "Processing: Way") || strings.Contains(line, "Going over pending ways"):
		return PhaseWays, true
	case strings.Contains(line, "Processing: Relation"):
		return PhaseRelations, true
	case strings.Contains(line, "Clustering") || strings.Contains(line, "Creating indexes"):
		return PhaseIndexing, true
	}
	return "", false
}
