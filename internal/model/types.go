package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether a run in this status will not change again.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// RunSettings is the request half of a run record.
type RunSettings struct {
	Problem        string  `json:"problem"`
	PopulationSize int     `json:"population_size"`
	MutationRate   float64 `json:"mutation_rate"`
	Workers        int     `json:"workers"`
	Seed           int64   `json:"seed"`
	MaxGenerations int     `json:"max_generations"`
	Target         float64 `json:"target,omitempty"`
	Size           int     `json:"size,omitempty"`
	Phrase         string  `json:"phrase,omitempty"`
}

type RunRecord struct {
	VersionedRecord
	ID       string      `json:"id"`
	Settings RunSettings `json:"settings"`
	Status   RunStatus   `json:"status"`

	Best        string  `json:"best,omitempty"`
	BestFitness float64 `json:"best_fitness"`
	Target      float64 `json:"target"`
	Generations int     `json:"generations"`
	Reached     bool    `json:"reached"`
	Error       string  `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// GenerationRecord is the persisted summary of one finished generation.
type GenerationRecord struct {
	VersionedRecord
	Index        int     `json:"index"`
	Best         string  `json:"best"`
	BestFitness  float64 `json:"best_fitness"`
	WorstFitness float64 `json:"worst_fitness"`
	Size         int     `json:"size"`
}
