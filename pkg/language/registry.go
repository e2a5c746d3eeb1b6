package language

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// ErrInvalidCommand indicates a command template that expands to nothing usable.
var ErrInvalidCommand = errors.New("invalid command template")

// Adapter maps a language to its source file convention and process invocations.
// Templates may reference {src} (source file) and {bin} (build artifact); both are
// relative to the workspace the command runs in.
type Adapter struct {
	Language        Language
	FileName        string
	BinaryName      string
	CompileTemplate string
	RunTemplate     string
	Image           string
}

// Compiled reports whether the adapter declares a compile step.
func (a Adapter) Compiled() bool {
	return strings.TrimSpace(a.CompileTemplate) != ""
}

// CompileCommand expands the compile template. It returns nil for interpreted languages.
func (a Adapter) CompileCommand() ([]string, error) {
	if !a.Compiled() {
		return nil, nil
	}
	return a.expand(a.CompileTemplate)
}

// RunCommand expands the run template.
func (a Adapter) RunCommand() ([]string, error) {
	return a.expand(a.RunTemplate)
}

func (a Adapter) expand(tpl string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, fmt.Errorf("%w: %s template is empty", ErrInvalidCommand, a.Language)
	}

	expanded := strings.NewReplacer("{src}", a.FileName, "{bin}", a.BinaryName).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCommand, a.Language, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s command is empty after expansion", ErrInvalidCommand, a.Language)
	}
	return fields, nil
}

// Option customises a Registry.
type Option func(map[Language]Adapter)

// WithRunTemplate overrides the run command template of lang.
func WithRunTemplate(lang Language, tpl string) Option {
	return func(adapters map[Language]Adapter) {
		if strings.TrimSpace(tpl) == "" {
			return
		}
		if adapter, ok := adapters[lang]; ok {
			adapter.RunTemplate = tpl
			adapters[lang] = adapter
		}
	}
}

// WithCompileTemplate overrides the compile command template of lang.
func WithCompileTemplate(lang Language, tpl string) Option {
	return func(adapters map[Language]Adapter) {
		if strings.TrimSpace(tpl) == "" {
			return
		}
		if adapter, ok := adapters[lang]; ok {
			adapter.CompileTemplate = tpl
			adapters[lang] = adapter
		}
	}
}

// WithImage overrides the container image used by the docker backend for lang.
func WithImage(lang Language, image string) Option {
	return func(adapters map[Language]Adapter) {
		if strings.TrimSpace(image) == "" {
			return
		}
		if adapter, ok := adapters[lang]; ok {
			adapter.Image = image
			adapters[lang] = adapter
		}
	}
}

// Registry is an immutable strategy table from Language to Adapter.
// It never touches the filesystem or the process table.
type Registry struct {
	adapters map[Language]Adapter
}

// NewRegistry builds the default table and applies opts.
func NewRegistry(opts ...Option) *Registry {
	adapters := defaultAdapters()
	for _, opt := range opts {
		if opt != nil {
			opt(adapters)
		}
	}
	return &Registry{adapters: adapters}
}

// Lookup returns the adapter of lang.
func (r *Registry) Lookup(lang Language) (Adapter, error) {
	adapter, ok := r.adapters[lang]
	if !ok {
		return Adapter{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, string(lang))
	}
	return adapter, nil
}

func defaultAdapters() map[Language]Adapter {
	return map[Language]Adapter{
		Java: {
			Language:        Java,
			FileName:        "Solution.java",
			BinaryName:      "Solution",
			CompileTemplate: "javac {src}",
			RunTemplate:     "java {bin}",
			Image:           "eclipse-temurin:21-jdk-alpine",
		},
		Python: {
			Language:    Python,
			FileName:    "solution.py",
			RunTemplate: "python3 {src}",
			Image:       "python:3.11-alpine",
		},
		Cpp: {
			Language:        Cpp,
			FileName:        "solution.cpp",
			BinaryName:      "solution",
			CompileTemplate: "g++ -O2 -std=c++17 -o {bin} {src}",
			RunTemplate:     "./{bin}",
			Image:           "gcc:13",
		},
		JavaScript: {
			Language:    JavaScript,
			FileName:    "solution.js",
			RunTemplate: "node {src}",
			Image:       "node:20-alpine",
		},
	}
}
