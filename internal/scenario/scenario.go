// Package scenario loads navigation scenarios from YAML and turns them into
// verify steps.
package scenario

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rahul/navcheck/internal/verify"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios/*.yaml
var builtinFS embed.FS

var validate = validator.New()

// Scenario is a named step list against a base URL.
type Scenario struct {
	Name    string     `yaml:"name" validate:"required"`
	BaseURL string     `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Steps   []StepSpec `yaml:"steps" validate:"required,min=1,dive"`
}

// StepSpec is one YAML step. Exactly one field is set.
type StepSpec struct {
	Goto                 string    `yaml:"goto,omitempty"`
	Click                *RoleName `yaml:"click,omitempty"`
	AssertTitle          *string   `yaml:"assert_title,omitempty"`
	AssertHeadingVisible string    `yaml:"assert_heading_visible,omitempty"`
	Screenshot           string    `yaml:"screenshot,omitempty"`
}

type RoleName struct {
	Role string `yaml:"role" validate:"required"`
	Name string `yaml:"name" validate:"required"`
}

// Resolve controls how relative references in a scenario are expanded.
type Resolve struct {
	// BaseURL overrides the scenario's base_url when set.
	BaseURL string
	// ArtifactDir prefixes relative screenshot paths when set.
	ArtifactDir string
}

// Parse decodes and validates a scenario document. Unknown keys are errors.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Builtin returns an embedded scenario by name.
func Builtin(name string) (*Scenario, error) {
	data, err := builtinFS.ReadFile("scenarios/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in scenario %q (available: %v)", name, Builtins())
	}
	return Parse(data)
}

// Builtins lists the embedded scenario names.
func Builtins() []string {
	entries, _ := builtinFS.ReadDir("scenarios")
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	var errs []error
	for i, st := range s.Steps {
		if n := st.kinds(); n != 1 {
			errs = append(errs, fmt.Errorf("step %d: expected exactly one action, found %d", i, n))
		}
	}
	return errors.Join(errs...)
}

func (st StepSpec) kinds() int {
	n := 0
	for _, set := range []bool{
		st.Goto != "",
		st.Click != nil,
		st.AssertTitle != nil,
		st.AssertHeadingVisible != "",
		st.Screenshot != "",
	} {
		if set {
			n++
		}
	}
	return n
}

// VerifySteps converts the scenario into verify steps, resolving goto URLs
// against the base URL and screenshot paths against the artifact directory.
func (s *Scenario) VerifySteps(r Resolve) ([]verify.Step, error) {
	baseURL := s.BaseURL
	if r.BaseURL != "" {
		baseURL = r.BaseURL
	}
	var base *url.URL
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
		}
		base = u
	}

	steps := make([]verify.Step, 0, len(s.Steps))
	for i, st := range s.Steps {
		switch {
		case st.Goto != "":
			target, err := resolveURL(base, st.Goto)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			steps = append(steps, verify.Goto(target))
		case st.Click != nil:
			steps = append(steps, verify.ClickByRoleName(st.Click.Role, st.Click.Name))
		case st.AssertTitle != nil:
			steps = append(steps, verify.AssertTitle(*st.AssertTitle))
		case st.AssertHeadingVisible != "":
			steps = append(steps, verify.AssertHeadingVisible(st.AssertHeadingVisible))
		case st.Screenshot != "":
			path := st.Screenshot
			if r.ArtifactDir != "" && !filepath.IsAbs(path) {
				path = filepath.Join(r.ArtifactDir, path)
			}
			steps = append(steps, verify.CaptureScreenshot(path))
		default:
			return nil, fmt.Errorf("step %d: no action", i)
		}
	}
	return steps, nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if base == nil {
		return "", fmt.Errorf("relative url %q needs a base_url", ref)
	}
	return base.ResolveReference(u).String(), nil
}
