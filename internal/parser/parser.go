package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/justin4957/fleetwatch/pkg/models"
	"gopkg.in/yaml.v3"
)

// SnapshotParser interface for decoding different snapshot formats
type SnapshotParser interface {
	Parse(data []byte) (*models.FleetSnapshot, error)
}

// NewParser creates a parser based on the specified format
func NewParser(format string) SnapshotParser {
	switch format {
	case "yaml", "yml":
		return &YAMLParser{}
	default:
		return &JSONParser{}
	}
}

// DetectFormat guesses the snapshot format from a file extension
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// JSONParser parses JSON snapshots
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*models.FleetSnapshot, error) {
	var snapshot models.FleetSnapshot
	decoder := json.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse JSON snapshot: %w", err)
	}
	return finalize(&snapshot)
}

// YAMLParser parses YAML snapshots
type YAMLParser struct{}

func (p *YAMLParser) Parse(data []byte) (*models.FleetSnapshot, error) {
	var snapshot models.FleetSnapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse YAML snapshot: %w", err)
	}
	return finalize(&snapshot)
}

// finalize rejects trips without an owner and indexes the rest by vehicle
func finalize(snapshot *models.FleetSnapshot) (*models.FleetSnapshot, error) {
	for i, trip := range snapshot.Trips {
		if trip.VehicleID == "" {
			return nil, fmt.Errorf("trip #%d (%q) has no vehicle_id", i, trip.ID)
		}
	}
	snapshot.Index()
	return snapshot, nil
}
