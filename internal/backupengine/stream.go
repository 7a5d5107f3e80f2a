package backupengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"omnipitr/internal/compress"
	"omnipitr/internal/digest"
	"omnipitr/internal/pipeline"
	"omnipitr/internal/runner"
)

// digestProgram maps a digest algorithm to the coreutils program the pipe
// builder execs as a stdout-program leaf ( digester interior
// nodes), matching the pipe builder's own scenario of `md5sum -` consuming
// a producer's stdout through a FIFO.
func digestProgram(a digest.Algorithm) (string, error) {
	switch a {
		case digest.MD5:
		return "md5sum", nil
		case digest.SHA1:
		return "sha1sum", nil
		case digest.SHA256:
		return "sha256sum", nil
		case digest.SHA512:
		return "sha512sum", nil
		default:
		return "", fmt.Errorf("backupengine: no digest program for algorithm %q", a)
	}
}

// Artifact is one output file produced by a stream tree: a compressed copy
// (label is the compress.Type name or "none") or a digest file (label is
// "digest:<algorithm>").
type Artifact struct {
	Label string
	Path string
}

// BuildStreamTree assembles the pipe-builder tree rooted at the tar
// command: one stdout file/program per requested compression type, plus
// one digest-program child per requested algorithm, each writing into
// the path the namer returns for it — tar's output tees through
// multiple compressors and digesters to multiple destinations
// simultaneously.
func BuildStreamTree(tarArgv []string, compressionTypes []compress.Type, bin compress.Binary, digests []digest.Algorithm, namer func(label string) string) (*pipeline.Node, []Artifact, error) {
	root := &pipeline.Node{Argv: tarArgv}
	var artifacts []Artifact

	for _, t := range compressionTypes {
		path := namer(string(t))
		if t == compress.None {
			root.AddStdoutFile(path)
			artifacts = append(artifacts, Artifact{Label: "none", Path: path})
			continue
		}
		prog, err := bin.PathFor(t)
		if err != nil {
			return nil, nil, err
		}
		child := &pipeline.Node{Argv: []string{prog, "-c"}}
		child.AddStdoutFile(path)
		root.AddStdoutProgram(child)
		artifacts = append(artifacts, Artifact{Label: string(t), Path: path})
	}

	for _, a := range digests {
		prog, err := digestProgram(a)
		if err != nil {
			return nil, nil, err
		}
		path := namer("digest:" + string(a))
		child := &pipeline.Node{Argv: []string{prog, "-"}}
		child.AddStdoutFile(path)
		root.AddStdoutProgram(child)
		artifacts = append(artifacts, Artifact{Label: "digest:" + string(a), Path: path})
	}

	return root, artifacts, nil
}

// RunStreamTree renders root into a shell script under tempDir and runs it
// through shellPath: mkfifo every fifo first, background every consumer,
// run the root command in the foreground, wait, then rm the fifos.
func RunStreamTree(ctx context.Context, r runner.Runner, shellPath string, root *pipeline.Node, tempDir string) error {
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	if err := os.MkdirAll(tempDir, 0700); err != nil {
		return fmt.Errorf("backupengine: mkdir %s: %w", tempDir, err)
	}

	script, err := pipeline.Render(root, tempDir)
	if err != nil {
		return fmt.Errorf("backupengine: render pipe tree: %w", err)
	}

	scriptPath := filepath.Join(tempDir, "stream.sh")
	if err := os.WriteFile(scriptPath, []byte(script.Text), 0700); err != nil {
		return fmt.Errorf("backupengine: write %s: %w", scriptPath, err)
	}

	res := r.Run(ctx, []string{shellPath, scriptPath}, nil)
	if res.Err != nil || res.ExitCode != 0 {
		return fmt.Errorf("backupengine: stream script failed (exit %d): %s: %w", res.ExitCode, res.CombinedOutput(), res.Err)
	}
	return nil
}
