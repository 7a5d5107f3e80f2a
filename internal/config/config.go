// Package config builds the ambient configuration shared by every
// omnipitr command: the global flags (--data-dir, --log, --verbose,
// --not-nice, --nice-path, --parallel-jobs, ...), each with an
// environment-variable default. This package holds no global: main.go
// builds one Global and hands it to cmd.Execute, which keeps it for the
// command tree.
package config

import (
	"fmt"
	"os"
	"strconv"

	"omnipitr/internal/cpu"
)

// Global holds the flags every omnipitr command shares, plus the CPU
// detector used to size --parallel-jobs when the operator leaves it at
// its zero value.
type Global struct {
	DataDir string
	LogTemplate string
	Verbose bool
	NotNice bool
	NicePath string
	ParallelJobs int
	GzipPath string
	Bzip2Path string
	LzmaPath string
	RsyncPath string
	TarPath string
	ShellPath string
	PgControldataPath string
	AllowInsecureSSH bool

	CPUDetector *cpu.Detector
}

// New builds a Global with environment-variable defaults
// (OMNIPITR_DATA_DIR, OMNIPITR_LOG, OMNIPITR_VERBOSE, …).
func New() *Global {
	detector := cpu.NewDetector()
	return &Global{
		DataDir: getEnvString("OMNIPITR_DATA_DIR", ""),
		LogTemplate: getEnvString("OMNIPITR_LOG", ""),
		Verbose: getEnvBool("OMNIPITR_VERBOSE", false),
		NotNice: getEnvBool("OMNIPITR_NOT_NICE", false),
		NicePath: getEnvString("OMNIPITR_NICE_PATH", "nice"),
		ParallelJobs: getEnvInt("OMNIPITR_PARALLEL_JOBS", 0),
		GzipPath: getEnvString("OMNIPITR_GZIP_PATH", "gzip"),
		Bzip2Path: getEnvString("OMNIPITR_BZIP2_PATH", "bzip2"),
		LzmaPath: getEnvString("OMNIPITR_LZMA_PATH", "lzma"),
		RsyncPath: getEnvString("OMNIPITR_RSYNC_PATH", "rsync"),
		TarPath: getEnvString("OMNIPITR_TAR_PATH", "tar"),
		ShellPath: getEnvString("OMNIPITR_SHELL_PATH", "/bin/sh"),
		PgControldataPath: getEnvString("OMNIPITR_PGCONTROLDATA_PATH", "pg_controldata"),
		AllowInsecureSSH: getEnvBool("OMNIPITR_ALLOW_INSECURE_SSH", false),
		CPUDetector: detector,
	}
}

// Validate checks that required flags are set, so a misconfigured
// invocation fails fast before touching the filesystem or a database
// connection.
func (g *Global) Validate() error {
	if g.DataDir == "" {
		return fmt.Errorf("config: --data-dir is required")
	}
	if g.ParallelJobs < 0 {
		return fmt.Errorf("config: --parallel-jobs must be >= 0 (0 selects a CPU-derived default)")
	}
	return nil
}

// ResolveParallelJobs returns ParallelJobs if the operator set it
// explicitly, otherwise derives a default from the detected CPU using an
// I/O-intensive workload profile, since the supervisor's jobs spend most
// of their time blocked on rsync/ssh, not on CPU.
func (g *Global) ResolveParallelJobs() int {
	if g.ParallelJobs > 0 {
		return g.ParallelJobs
	}
	if g.CPUDetector == nil {
		g.CPUDetector = cpu.NewDetector()
	}
	jobs, err := g.CPUDetector.CalculateOptimalJobs("io-intensive", 0)
	if err != nil || jobs < 1 {
		return 1
	}
	return jobs
}

func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
