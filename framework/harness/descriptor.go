package harness

import (
	"fmt"
	"os"
	"regexp"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hass-mqtt-bridge/platform-harness/framework/opt"
)

// EnvironmentDescriptor is the static configuration of the multi-service test
// environment: a named collection of services. It is never mutated at runtime.
type EnvironmentDescriptor struct {
	Name     string              `yaml:"name"`
	Services []ServiceDescriptor `yaml:"services"`
}

// ServiceDescriptor configures one service: its image, environment, mounted
// files, exposed ports, wait condition, and which persistent watchers the
// stack should attach to it. Environment values (broker URLs, credentials,
// interval strings such as "4s..6s") are passed through to the container
// uninterpreted.
type ServiceDescriptor struct {
	Name            string            `yaml:"name"`
	Image           string            `yaml:"image"`
	Command         []string          `yaml:"command,omitempty"`
	Env             map[string]string `yaml:"env,omitempty"`
	Ports           []string          `yaml:"ports,omitempty"`
	Files           []FileMount       `yaml:"files,omitempty"`
	Wait            *WaitDescriptor   `yaml:"wait,omitempty"`
	WatchEntities   bool              `yaml:"watchEntities,omitempty"`
	CaptureMessages bool              `yaml:"captureMessages,omitempty"`
}

// FileMount binds a host file into the container.
type FileMount struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// WaitDescriptor is the serialized form of a WaitStrategy: exactly one of Log
// (literal substring) or Pattern (single-line regular expression), plus an
// optional timeout. Timeouts vary per environment, so they are configuration
// rather than constants.
type WaitDescriptor struct {
	Log     string   `yaml:"log,omitempty"`
	Pattern string   `yaml:"pattern,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// Duration wraps time.Duration so descriptors can use values like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// LoadEnvironmentDescriptor reads and validates a YAML environment descriptor.
func LoadEnvironmentDescriptor(path string) (EnvironmentDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EnvironmentDescriptor{}, err
	}
	return ParseEnvironmentDescriptor(data)
}

// ParseEnvironmentDescriptor parses and validates YAML descriptor data.
func ParseEnvironmentDescriptor(data []byte) (EnvironmentDescriptor, error) {
	var d EnvironmentDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return EnvironmentDescriptor{}, fmt.Errorf("malformed environment descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return EnvironmentDescriptor{}, err
	}
	return d, nil
}

// Validate checks the descriptor for configuration mistakes that would
// otherwise only surface mid-startup.
func (d EnvironmentDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("environment descriptor has no name")
	}
	if len(d.Services) == 0 {
		return fmt.Errorf("environment descriptor has no services")
	}
	names := make(map[string]bool)
	for _, svc := range d.Services {
		if svc.Name == "" {
			return fmt.Errorf("service with no name")
		}
		if names[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		names[svc.Name] = true
		if svc.Image == "" {
			return fmt.Errorf("service %q has no image", svc.Name)
		}
		if _, err := svc.waitStrategy(); err != nil {
			return err
		}
	}
	return nil
}

// waitStrategy compiles the service's wait condition, if it has one.
func (s ServiceDescriptor) waitStrategy() (opt.Maybe[WaitStrategy], error) {
	if s.Wait == nil {
		return opt.None[WaitStrategy](), nil
	}
	timeout := time.Duration(s.Wait.Timeout)
	switch {
	case s.Wait.Log != "" && s.Wait.Pattern != "":
		return opt.None[WaitStrategy](), fmt.Errorf("service %q: wait condition has both log and pattern", s.Name)
	case s.Wait.Log != "":
		return opt.Some(WaitForLogLine(s.Wait.Log, timeout)), nil
	case s.Wait.Pattern != "":
		p, err := regexp.Compile(s.Wait.Pattern)
		if err != nil {
			return opt.None[WaitStrategy](), fmt.Errorf("service %q: invalid wait pattern: %w", s.Name, err)
		}
		return opt.Some(WaitForLogPattern(p, timeout)), nil
	default:
		return opt.None[WaitStrategy](), fmt.Errorf("service %q: wait condition has neither log nor pattern", s.Name)
	}
}
