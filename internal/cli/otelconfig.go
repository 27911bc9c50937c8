package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// collectorConfig is the part of an OpenTelemetry Collector config that
// says where file exporters write.
type collectorConfig struct {
	Exporters map[string]fileExporter `yaml:"exporters"`
	Service   struct {
		Pipelines map[string]struct {
			Exporters []string `yaml:"exporters"`
		} `yaml:"pipelines"`
	} `yaml:"service"`
}

type fileExporter struct {
	Path string `yaml:"path"`
}

// ParseOtelConfig reads an OpenTelemetry Collector config and returns the
// directories written by "file" exporters of traces and logs pipelines,
// the signals local capture understands. Metrics-only exporters are skipped.
// Relative paths resolve against the config file's directory.
func ParseOtelConfig(configPath string) ([]string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read otel config: %w", err)
	}

	var config collectorConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse otel config: %w", err)
	}

	used := make(map[string]bool)
	for name, pipeline := range config.Service.Pipelines {
		signal, _, _ := strings.Cut(name, "/")
		if signal != "traces" && signal != "logs" {
			continue
		}
		for _, exp := range pipeline.Exporters {
			used[exp] = true
		}
	}

	dirSet := make(map[string]struct{})
	for name, exporter := range config.Exporters {
		if name != "file" && !strings.HasPrefix(name, "file/") || exporter.Path == "" {
			continue
		}
		// without a service section every file exporter counts
		if len(config.Service.Pipelines) > 0 && !used[name] {
			continue
		}
		dir := filepath.Dir(exporter.Path)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(configPath), dir)
		}
		dirSet[dir] = struct{}{}
	}

	dirs := make([]string, 0, len(dirSet))
	for dir := range dirSet {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}
