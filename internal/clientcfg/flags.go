// SPDX-License-Identifier: MPL-2.0

// Package clientcfg wires the CLI flags shared by posh and posh-shell
// (spec.md §6), binding each one through viper so every flag also has a
// POSH_-prefixed environment variable fallback.
package clientcfg

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"posh/internal/annotation"
	"posh/internal/mount"
	"posh/pkg/poshlog"
)

// DefaultRuntimePort is the proxy control port used when --runtime_port is
// not given (spec.md §6).
const DefaultRuntimePort = 1235

// Flags holds the parsed value of every client flag.
type Flags struct {
	AnnotationsFile string
	MountFile       string
	Pwd             string
	TmpFile         string
	RuntimePort     int
	SplittingFactor int
	TracingLevel    string
}

// Register attaches every client flag to cmd's persistent flag set and
// binds each one through a fresh viper instance so POSH_ANNOTATIONS_FILE
// etc. override an unset flag (spec.md §6's CLI surface).
func Register(cmd *cobra.Command) *Flags {
	f := &Flags{}
	cmd.PersistentFlags().StringVar(&f.AnnotationsFile, "annotations_file", "", "path to the annotation file (spec.md §4.1)")
	cmd.PersistentFlags().StringVar(&f.MountFile, "mount_file", "", "path to the mount configuration YAML file (spec.md §4.3)")
	cmd.PersistentFlags().StringVar(&f.Pwd, "pwd", "", "working directory pipelines resolve relative paths against (defaults to the process cwd)")
	cmd.PersistentFlags().StringVar(&f.TmpFile, "tmpfile", "", "scratch file for intermediate buffering")
	cmd.PersistentFlags().IntVar(&f.RuntimePort, "runtime_port", DefaultRuntimePort, "proxy control port")
	cmd.PersistentFlags().IntVar(&f.SplittingFactor, "splitting_factor", 1, "maximum number of clones a splittable stage fans out to")
	cmd.PersistentFlags().StringVar(&f.TracingLevel, "tracing_level", "none", "log level: none, error, info, or debug")

	v := viper.New()
	v.SetEnvPrefix("POSH")
	v.AutomaticEnv()
	for _, name := range []string{"annotations_file", "mount_file", "pwd", "tmpfile", "runtime_port", "splitting_factor", "tracing_level"} {
		_ = v.BindPFlag(name, cmd.PersistentFlags().Lookup(name))
	}
	cobra.OnInitialize(func() { bindFromViper(f, v) })
	return f
}

func bindFromViper(f *Flags, v *viper.Viper) {
	if f.AnnotationsFile == "" {
		f.AnnotationsFile = v.GetString("annotations_file")
	}
	if f.MountFile == "" {
		f.MountFile = v.GetString("mount_file")
	}
	if f.Pwd == "" {
		f.Pwd = v.GetString("pwd")
	}
	if f.TmpFile == "" {
		f.TmpFile = v.GetString("tmpfile")
	}
	// viper returns the flag's value when it was given, else the POSH_
	// environment variable, else the flag's default.
	f.RuntimePort = v.GetInt("runtime_port")
	f.SplittingFactor = v.GetInt("splitting_factor")
	f.TracingLevel = v.GetString("tracing_level")
}

// ResolvePwd returns f.Pwd if set, else the process's own working directory.
func (f *Flags) ResolvePwd() (string, error) {
	if f.Pwd != "" {
		return f.Pwd, nil
	}
	return os.Getwd()
}

// LoadAnnotations loads the annotation file named by --annotations_file.
func (f *Flags) LoadAnnotations() (*annotation.Table, error) {
	if f.AnnotationsFile == "" {
		return annotation.NewTable(), nil
	}
	return annotation.LoadFile(f.AnnotationsFile)
}

// LoadMount loads the mount configuration file named by --mount_file.
func (f *Flags) LoadMount() (*mount.Config, error) {
	if f.MountFile == "" {
		return &mount.Config{Table: mount.NewTable(nil), Links: mount.NewLinkHints(), TmpDirs: map[string]string{}}, nil
	}
	return mount.LoadConfigFile(f.MountFile)
}

// Logger builds the shared charmbracelet/log logger for component, honoring
// --tracing_level.
func (f *Flags) Logger(component string) (*log.Logger, error) {
	level, err := poshlog.ParseLevel(f.TracingLevel)
	if err != nil {
		return nil, fmt.Errorf("clientcfg: %w", err)
	}
	return poshlog.New(os.Stderr, component, level), nil
}
