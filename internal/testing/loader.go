package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"valheimcli/internal/state"
)

// planLoader implements TestPlanLoader for YAML files
type planLoader struct{}

// NewTestPlanLoader creates a loader for YAML plan files.
func NewTestPlanLoader() TestPlanLoader {
	return &planLoader{}
}

// LoadPlan reads and validates one plan file.
func (l *planLoader) LoadPlan(path string) (*TestPlan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test plan %s: %w", path, err)
	}
	plan, err := ParsePlan(content)
	if err != nil {
		return nil, fmt.Errorf("test plan %s: %w", path, err)
	}
	plan.SourcePath = path
	if plan.Name == "" {
		plan.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return plan, nil
}

// LoadPlans loads every .yaml and .yml file under dir, ordered by path.
func (l *planLoader) LoadPlans(dir string) ([]*TestPlan, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || (!strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml")) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search for test plans: %w", err)
	}
	sort.Strings(paths)

	plans := make([]*TestPlan, 0, len(paths))
	for _, path := range paths {
		plan, err := l.LoadPlan(path)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// ParsePlan decodes and validates a YAML plan. A nameless plan is allowed
// here; LoadPlan names it after its file.
func ParsePlan(content []byte) (*TestPlan, error) {
	var plan TestPlan
	if err := yaml.Unmarshal(content, &plan); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := ValidatePlan(&plan); err != nil {
		return nil, err
	}
	for i := range plan.Tests {
		plan.Tests[i].Repeat = plan.Tests[i].Iterations()
	}
	return &plan, nil
}

// ValidatePlan checks a plan for mistakes that would otherwise only show up
// halfway through a run.
func ValidatePlan(plan *TestPlan) error {
	if len(plan.Tests) == 0 {
		return fmt.Errorf("plan has no tests")
	}
	if plan.Game.Launch && plan.Game.Executable == "" {
		return fmt.Errorf("game.launch requires game.executable")
	}

	seen := make(map[string]bool, len(plan.Tests))
	for i, tc := range plan.Tests {
		if strings.TrimSpace(tc.Name) == "" {
			return fmt.Errorf("test %d has no name", i+1)
		}
		if seen[tc.Name] {
			return fmt.Errorf("duplicate test name %q", tc.Name)
		}
		seen[tc.Name] = true

		if tc.Wait != nil {
			// States may come from variables, so only literal names are checked.
			if s := tc.Wait.State; s != "" && !strings.Contains(s, "$") {
				if _, ok := state.ParseGameState(s); !ok {
					return fmt.Errorf("test %q: unknown state %q", tc.Name, s)
				}
			}
			if tc.Wait.State == "" && tc.Wait.Event == "" {
				return fmt.Errorf("test %q: wait needs a state or an event", tc.Name)
			}
		}
		if len(tc.Commands) == 0 && tc.Expect != nil {
			return fmt.Errorf("test %q: expect without commands", tc.Name)
		}
	}
	return nil
}
