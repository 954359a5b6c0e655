package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Vec2 is a YAML {x, y} pair.
type Vec2 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// EntitySpawn describes one entity created at tick 0.
type EntitySpawn struct {
	Name     string `yaml:"name"`
	Position Vec2   `yaml:"position"`
	Velocity Vec2   `yaml:"velocity"`
	Frozen   bool   `yaml:"frozen"`
}

// InputEntry sets an entity's velocity at a tick.
type InputEntry struct {
	Tick     uint32 `yaml:"tick"`
	Entity   string `yaml:"entity"`
	Velocity Vec2   `yaml:"velocity"`
}

// Correction models late-arriving inputs: when the run reaches At it rolls
// back to RollbackTo, applies Inputs and replays up to At.
type Correction struct {
	At         uint32       `yaml:"at"`
	RollbackTo uint32       `yaml:"rollback_to"`
	Inputs     []InputEntry `yaml:"inputs"`
}

// DespawnEntry destroys an entity at a tick.
type DespawnEntry struct {
	Tick   uint32 `yaml:"tick"`
	Entity string `yaml:"entity"`
}

type scenarioFile struct {
	Entities    []EntitySpawn  `yaml:"entities"`
	Inputs      []InputEntry   `yaml:"inputs"`
	Corrections []Correction   `yaml:"corrections"`
	Despawns    []DespawnEntry `yaml:"despawns"`
}

// Scenario is a validated scripted run.
type Scenario struct {
	entities    []EntitySpawn
	index       map[string]int
	inputs      []InputEntry
	corrections []Correction
	despawns    []DespawnEntry
}

// Entities returns spawns in file order. The position in this slice is the
// entity's spawn order.
func (s *Scenario) Entities() []EntitySpawn { return s.entities }

// Index returns the spawn order of a named entity.
func (s *Scenario) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Inputs returns the scheduled inputs sorted by tick.
func (s *Scenario) Inputs() []InputEntry { return s.inputs }

// Corrections returns the corrections sorted by the tick they fire at.
func (s *Scenario) Corrections() []Correction { return s.corrections }

// Despawns returns the despawns sorted by tick.
func (s *Scenario) Despawns() []DespawnEntry { return s.despawns }

// Count returns the number of entities.
func (s *Scenario) Count() int { return len(s.entities) }

// LoadScenario loads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(raw []byte) (*Scenario, error) {
	var f scenarioFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	s := &Scenario{
		entities:    f.Entities,
		index:       make(map[string]int, len(f.Entities)),
		inputs:      f.Inputs,
		corrections: f.Corrections,
		despawns:    f.Despawns,
	}
	for i, e := range f.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("scenario entity #%d has no name", i)
		}
		if _, dup := s.index[e.Name]; dup {
			return nil, fmt.Errorf("scenario entity %q defined twice", e.Name)
		}
		s.index[e.Name] = i
	}
	check := func(where, name string) error {
		if _, ok := s.index[name]; !ok {
			return fmt.Errorf("scenario %s references unknown entity %q", where, name)
		}
		return nil
	}
	for _, in := range s.inputs {
		if err := check("input", in.Entity); err != nil {
			return nil, err
		}
	}
	for _, d := range s.despawns {
		if err := check("despawn", d.Entity); err != nil {
			return nil, err
		}
	}
	for _, c := range s.corrections {
		if c.RollbackTo >= c.At {
			return nil, fmt.Errorf("scenario correction at tick %d rolls back to %d, which is not earlier", c.At, c.RollbackTo)
		}
		for _, in := range c.Inputs {
			if err := check("correction", in.Entity); err != nil {
				return nil, err
			}
			if in.Tick <= c.RollbackTo || in.Tick > c.At {
				return nil, fmt.Errorf("scenario correction at tick %d has input for tick %d outside (%d, %d]",
					c.At, in.Tick, c.RollbackTo, c.At)
			}
		}
	}
	sort.SliceStable(s.inputs, func(i, j int) bool { return s.inputs[i].Tick < s.inputs[j].Tick })
	sort.SliceStable(s.corrections, func(i, j int) bool { return s.corrections[i].At < s.corrections[j].At })
	sort.SliceStable(s.despawns, func(i, j int) bool { return s.despawns[i].Tick < s.despawns[j].Tick })
	return s, nil
}
