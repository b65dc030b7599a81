package verify

import "fmt"

// StepKind names one of the fixed actions a Step can perform.
type StepKind string

const (
	KindGoto                 StepKind = "goto"
	KindClickByRoleName      StepKind = "click-by-role-name"
	KindAssertTitle          StepKind = "assert-title"
	KindAssertHeadingVisible StepKind = "assert-heading-visible"
	KindCaptureScreenshot    StepKind = "capture-screenshot"
)

// HeadingRole is the accessible role looked up by AssertHeadingVisible.
const HeadingRole = "heading"

// Step is a single ordered action against the current page. Only the fields
// relevant to Kind are set.
type Step struct {
	Kind     StepKind `json:"kind"`
	URL      string   `json:"url,omitempty"`
	Role     string   `json:"role,omitempty"`
	Name     string   `json:"name,omitempty"`
	Expected string   `json:"expected,omitempty"`
	Path     string   `json:"path,omitempty"`
}

func Goto(url string) Step {
	return Step{Kind: KindGoto, URL: url}
}

func ClickByRoleName(role, name string) Step {
	return Step{Kind: KindClickByRoleName, Role: role, Name: name}
}

func AssertTitle(expected string) Step {
	return Step{Kind: KindAssertTitle, Expected: expected}
}

func AssertHeadingVisible(name string) Step {
	return Step{Kind: KindAssertHeadingVisible, Role: HeadingRole, Name: name}
}

func CaptureScreenshot(path string) Step {
	return Step{Kind: KindCaptureScreenshot, Path: path}
}

// Validate reports whether the step carries the parameters its kind needs.
func (s Step) Validate() error {
	switch s.Kind {
	case KindGoto:
		if s.URL == "" {
			return fmt.Errorf("%s: url is required", s.Kind)
		}
	case KindClickByRoleName:
		if s.Role == "" || s.Name == "" {
			return fmt.Errorf("%s: role and name are required", s.Kind)
		}
	case KindAssertTitle:
		// An empty expected title is legal: it asserts the page has none.
	case KindAssertHeadingVisible:
		if s.Name == "" {
			return fmt.Errorf("%s: name is required", s.Kind)
		}
	case KindCaptureScreenshot:
		if s.Path == "" {
			return fmt.Errorf("%s: path is required", s.Kind)
		}
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

// Detail is a short human-readable rendering of the step parameters.
func (s Step) Detail() string {
	switch s.Kind {
	case KindGoto:
		return s.URL
	case KindClickByRoleName:
		return fmt.Sprintf("%s %q", s.Role, s.Name)
	case KindAssertTitle:
		return fmt.Sprintf("%q", s.Expected)
	case KindAssertHeadingVisible:
		return fmt.Sprintf("%q", s.Name)
	case KindCaptureScreenshot:
		return s.Path
	}
	return ""
}

func (s Step) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.Detail())
}
