// SPDX-License-Identifier: MPL-2.0

package mount

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the mount configuration file's YAML shape (spec.md §6):
//
//	mounts:        {proxy IP string: absolute client mount directory}
//	links:         {"(ipA,ipB)" or "(ip,client)": Mbps integer}
//	tmp_directory: {proxy IP: absolute path}
type fileConfig struct {
	Mounts       map[string]string `yaml:"mounts"`
	Links        map[string]int    `yaml:"links"`
	TmpDirectory map[string]string `yaml:"tmp_directory"`
}

// Config is the parsed, validated mount configuration.
type Config struct {
	Table   *Table
	Links   *LinkHints
	TmpDirs map[string]string // proxy IP -> absolute tmp directory
}

// LoadConfigFile reads and parses a mount configuration YAML file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &BadMountConfigError{Path: path, Reason: err.Error()}
	}
	return LoadConfig(path, data)
}

// LoadConfig parses mount configuration YAML from an in-memory buffer,
// grounded on original_source/shell/src/config/network.rs's FileNetwork::new.
func LoadConfig(sourceName string, data []byte) (*Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, &BadMountConfigError{Path: sourceName, Reason: err.Error()}
	}
	if len(fc.Mounts) == 0 {
		return nil, &BadMountConfigError{Path: sourceName, Reason: "config file contains no entries under mounts"}
	}

	var entries []Entry
	for ip, dir := range fc.Mounts {
		if !strings.HasPrefix(dir, "/") {
			return nil, &BadMountConfigError{Path: sourceName, Reason: fmt.Sprintf("mount directory %q for %q must be absolute", dir, ip)}
		}
		entries = append(entries, Entry{Location: Proxy(ip), Prefix: dir})
	}

	links := NewLinkHints()
	for key, mbps := range fc.Links {
		a, b, err := ParseLinkKey(key)
		if err != nil {
			return nil, &BadMountConfigError{Path: sourceName, Reason: err.Error()}
		}
		links.Set(a, b, mbps)
	}

	tmpDirs := make(map[string]string, len(fc.TmpDirectory))
	for ip, dir := range fc.TmpDirectory {
		tmpDirs[ip] = dir
	}

	return &Config{
		Table:   NewTable(entries),
		Links:   links,
		TmpDirs: tmpDirs,
	}, nil
}
