package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"momentum-hq/engine/pkg/rules"
)

// Catalogue is the YAML form of a task import.
type Catalogue struct {
	Tasks []Task `yaml:"tasks"`
}

// LoadTasks decodes and validates a task catalogue.
func LoadTasks(r io.Reader) ([]Task, error) {
	var cat Catalogue
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	if err := validateTasks(cat.Tasks); err != nil {
		return nil, err
	}
	return cat.Tasks, nil
}

// LoadTasksFile reads a catalogue from path.
func LoadTasksFile(path string) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	defer f.Close()
	return LoadTasks(f)
}

func validateTasks(tasks []Task) error {
	var errs []error
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("tasks[%d]: id is required", i))
			continue
		case seen[t.ID]:
			errs = append(errs, fmt.Errorf("tasks[%d]: duplicate id %q", i, t.ID))
		}
		seen[t.ID] = true

		if t.TrackID == "" {
			errs = append(errs, fmt.Errorf("task %q: track_id is required", t.ID))
		}
		if t.Title == "" {
			errs = append(errs, fmt.Errorf("task %q: title is required", t.ID))
		}
		if t.Module != "" && !rules.ValidModule(t.Module) {
			errs = append(errs, fmt.Errorf("task %q: unknown module %q", t.ID, t.Module))
		}
		if t.Difficulty < 0 || t.EstimatedMinutes < 0 {
			errs = append(errs, fmt.Errorf("task %q: difficulty and estimated_minutes must be non-negative", t.ID))
		}
	}
	return errors.Join(errs...)
}
