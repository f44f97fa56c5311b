package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/soferos/govpulse/internal/simd"
)

// statsColumns is the required CSV header, in order.
var statsColumns = []string{"rank", "neighborhood", "intermediate_zone", "council_area"}

// LoadStatsCSV parses deprivation records from CSV. The header row is
// required and must match statsColumns exactly.
func LoadStatsCSV(r io.Reader) ([]simd.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(statsColumns) {
		return nil, fmt.Errorf("header has %d columns, want %d", len(header), len(statsColumns))
	}
	for i, want := range statsColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return nil, fmt.Errorf("header column %d is %q, want %q", i, header[i], want)
		}
	}

	var records []simd.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rank, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("line %d: rank %q is not an integer", line, row[0])
		}
		if rank < 1 {
			return nil, fmt.Errorf("line %d: rank %d out of range", line, rank)
		}

		records = append(records, simd.Record{
			Rank:             rank,
			Neighborhood:     strings.TrimSpace(row[1]),
			IntermediateZone: strings.TrimSpace(row[2]),
			CouncilArea:      strings.TrimSpace(row[3]),
		})
	}
	return records, nil
}

// LoadStatsFile reads deprivation records from a CSV file.
func LoadStatsFile(path string) ([]simd.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return LoadStatsCSV(f)
}

// SampleRecords returns a small built-in dataset for demo setups when
// no CSV is supplied. Ranks span the full range across three council
// areas.
func SampleRecords() []simd.Record {
	return []simd.Record{
		{Rank: 1, Neighborhood: "Govan", IntermediateZone: "Govan", CouncilArea: "Glasgow City"},
		{Rank: 5, Neighborhood: "Possil Park", IntermediateZone: "Possil Park", CouncilArea: "Glasgow City"},
		{Rank: 50, Neighborhood: "Easterhouse", IntermediateZone: "Easterhouse", CouncilArea: "Glasgow City"},
		{Rank: 100, Neighborhood: "Parkhead", IntermediateZone: "Parkhead", CouncilArea: "Glasgow City"},
		{Rank: 500, Neighborhood: "City Centre", IntermediateZone: "City Centre", CouncilArea: "Glasgow City"},
		{Rank: 5000, Neighborhood: "Hyndland", IntermediateZone: "Hyndland", CouncilArea: "Glasgow City"},
		{Rank: 6000, Neighborhood: "Bearsden", IntermediateZone: "Bearsden", CouncilArea: "East Dunbartonshire"},
		{Rank: 6500, Neighborhood: "Newton Mearns", IntermediateZone: "Newton Mearns", CouncilArea: "East Renfrewshire"},
	}
}

// SamplePolicySource names the built-in policy document.
const SamplePolicySource = "industrial-strategy-sample.md"

// SamplePolicyDocument is a small built-in policy document for demo
// setups when no markdown file is supplied.
const SamplePolicyDocument = `# UK Industrial Strategy

The UK Industrial Strategy focuses on clean energy, advanced
manufacturing, and digital technologies. It aims to boost growth
across all nations including Scotland.

## Clean Energy

Clean energy investment targets offshore wind, hydrogen production,
and carbon capture. Scotland's North Sea expertise positions it as a
centre for the energy transition.

## Advanced Manufacturing

Advanced manufacturing support concentrates on aerospace, shipbuilding,
and precision engineering clusters, with skills funding directed at
regions where traditional industry has declined.

## Digital Technologies

Digital technology measures include fibre rollout, artificial
intelligence research funding, and support for software exports from
hubs in Glasgow, Edinburgh, and Dundee.
`
