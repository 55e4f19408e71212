package main

import (
	"encoding/json"
	"fmt"
	"os"

	"breeder/internal/platform"
)

// loadRunRequestFromConfig reads a run request from a JSON file. Unknown keys
// are ignored and numbers may be written as floats.
func loadRunRequestFromConfig(path string) (platform.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return platform.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return platform.RunRequest{}, err
	}

	var req platform.RunRequest
	if v, ok := asString(raw["problem"]); ok {
		req.Problem = v
	}
	if v, ok := asInt(raw["population_size"]); ok {
		req.PopulationSize = v
	}
	if v, ok := asFloat64(raw["mutation_rate"]); ok {
		req.MutationRate = platform.Rate(v)
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["max_generations"]); ok {
		req.MaxGenerations = v
	}
	if v, ok := asFloat64(raw["target"]); ok {
		req.Target = v
	}
	if v, ok := asInt(raw["size"]); ok {
		req.Size = v
	}
	if v, ok := asString(raw["phrase"]); ok {
		req.Phrase = v
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags copies explicitly set flags over values from a config file.
func overrideFromFlags(req *platform.RunRequest, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "problem":
			req.Problem = v.(string)
		case "pop":
			req.PopulationSize = v.(int)
		case "rate":
			req.MutationRate = platform.Rate(v.(float64))
		case "workers":
			req.Workers = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "gens":
			req.MaxGenerations = v.(int)
		case "target":
			req.Target = v.(float64)
		case "size":
			req.Size = v.(int)
		case "phrase":
			req.Phrase = v.(string)
		default:
			return fmt.Errorf("unsupported override flag: %s", name)
		}
	}
	return nil
}

func loadOrDefaultRunRequest(configPath string) (platform.RunRequest, error) {
	if configPath == "" {
		return platform.RunRequest{}, nil
	}
	req, err := loadRunRequestFromConfig(configPath)
	if err != nil {
		return platform.RunRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
