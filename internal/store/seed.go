// Package store provides order index sources: a JSON file with an edit
// workflow, a MongoDB collection and YAML seed fixtures.
package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tiffix/order-calendar/internal/calendar"
)

// SeedFile is the YAML fixture layout. Orders are listed per date so that a
// fixture reads like a calendar.
type SeedFile struct {
	Days []SeedDay `yaml:"days"`
}

type SeedDay struct {
	Date   string           `yaml:"date"`
	Orders []calendar.Order `yaml:"orders"`
}

// LoadSeed reads a YAML fixture and returns its orders in file order. An
// order's date defaults to the day it is listed under.
func LoadSeed(path string) ([]calendar.Order, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeed(raw)
}

// ParseSeed decodes YAML fixture bytes.
func ParseSeed(raw []byte) ([]calendar.Order, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	var orders []calendar.Order
	for _, day := range seed.Days {
		if _, err := calendar.ParseDate(day.Date); err != nil {
			return nil, fmt.Errorf("seed day: %w", err)
		}
		for _, o := range day.Orders {
			if o.ScheduledDate == "" {
				o.ScheduledDate = day.Date
			}
			if o.Status == "" {
				o.Status = calendar.StatusPreparing
			}
			if o.ProviderType == "" {
				o.ProviderType = calendar.Vendor
			}
			if err := o.Validate(); err != nil {
				return nil, fmt.Errorf("seed order: %w", err)
			}
			orders = append(orders, o)
		}
	}
	if _, err := calendar.NewIndex(orders); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return orders, nil
}
