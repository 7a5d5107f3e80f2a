package backupengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"omnipitr/internal/cloud"
	"omnipitr/internal/destination"
	"omnipitr/internal/logger"
	"omnipitr/internal/runner"
	"omnipitr/internal/sshleaf"
	"omnipitr/internal/supervisor"
)

// DeliverArtifacts fans every produced artifact out to every declared
// destination: each destination ends up with the full data tar, the full
// xlog tar, and one digest file per configured algorithm. The main tar
// artifact selected per destination matches its declared compression type;
// digest files are delivered to every destination unconditionally, since
// they are not produced per-compression.
func DeliverArtifacts(ctx context.Context, rn runner.Runner, parallelJobs int, rsyncPath string, allowInsecureSSH bool, dests []destination.Destination, artifacts []Artifact, log logger.Logger) error {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if parallelJobs < 1 {
		parallelJobs = 1
	}
	byLabel := map[string]Artifact{}
	for _, a := range artifacts {
		byLabel[a.Label] = a
	}

	var subprocessJobs []supervisor.Job
	var subprocessBackup []bool
	var cloudJobs, sshJobs []struct {
		dest destination.Destination
		src string
	}

	addDelivery := func(d destination.Destination, src string) {
		switch {
			case d.Kind.IsCloud():
			cloudJobs = append(cloudJobs, struct {
					dest destination.Destination
					src string
				}{d, src})
			case d.Kind == destination.SSH:
			sshJobs = append(sshJobs, struct {
					dest destination.Destination
					src string
				}{d, src})
			default:
			subprocessJobs = append(subprocessJobs, buildTransferJob(d, src, rsyncPath))
			subprocessBackup = append(subprocessBackup, d.Backup)
		}
	}

	for _, d := range dests {
		label := string(d.Compression)
		if label == "" {
			label = "none"
		}
		if art, ok := byLabel[label]; ok {
			addDelivery(d, art.Path)
		}
		for _, a := range artifacts {
			if strings.HasPrefix(a.Label, "digest:") {
				addDelivery(d, a.Path)
			}
		}
	}

	sup := supervisor.New(parallelJobs, rn)
	results := sup.Run(ctx, subprocessJobs)

	var failed bool
	for i, res := range results {
		if res.Ok() {
			log.Info("delivered backup artifact", "destination", res.Job.Label)
			continue
		}
		if subprocessBackup[i] {
			log.Warn("backup destination delivery failed, ignoring", "destination", res.Job.Label, "error", res.Err, "stderr", string(res.Stderr))
			continue
		}
		failed = true
		log.Error("backup artifact delivery failed", "destination", res.Job.Label, "error", res.Err, "stderr", string(res.Stderr))
	}

	for _, cj := range cloudJobs {
		if err := uploadToCloud(ctx, cj.dest, cj.src); err != nil {
			if cj.dest.Backup {
				log.Warn("backup destination delivery failed, ignoring", "destination", cj.dest.String(), "error", err)
				continue
			}
			failed = true
			log.Error("backup cloud delivery failed", "destination", cj.dest.String(), "error", err)
			continue
		}
		log.Info("delivered backup artifact", "destination", cj.dest.String())
	}

	for _, sj := range sshJobs {
		if err := uploadToSSH(ctx, allowInsecureSSH, sj.dest, sj.src); err != nil {
			if sj.dest.Backup {
				log.Warn("backup destination delivery failed, ignoring", "destination", sj.dest.String(), "error", err)
				continue
			}
			failed = true
			log.Error("backup ssh delivery failed", "destination", sj.dest.String(), "error", err)
			continue
		}
		log.Info("delivered backup artifact", "destination", sj.dest.String())
	}

	if failed {
		return fmt.Errorf("backupengine: one or more destinations failed delivery")
	}
	return nil
}

func buildTransferJob(d destination.Destination, src, rsyncPath string) supervisor.Job {
	if rsyncPath == "" {
		rsyncPath = "rsync"
	}
	if d.Kind == destination.Pipe {
		job := supervisor.Job{Argv: []string{d.Path, filepath.Base(src)}, Label: d.String()}
		if f, err := os.Open(src); err == nil {
			job.Stdin = f
		}
		return job
	}
	dstPath := filepath.Join(d.Path, filepath.Base(src))
	return supervisor.Job{Argv: []string{rsyncPath, "-t", src, dstPath}, Label: d.String()}
}

func uploadToCloud(ctx context.Context, d destination.Destination, src string) error {
	uri, err := cloud.ParseCloudURI(d.Path)
	if err != nil {
		return err
	}
	backend, err := cloud.NewBackend(uri.ToConfig())
	if err != nil {
		return err
	}
	remotePath := uri.BuildRemotePath(filepath.Base(src))
	return backend.Upload(ctx, src, remotePath, nil)
}

func uploadToSSH(ctx context.Context, allowInsecure bool, d destination.Destination, src string) error {
	cfg, remoteDir, err := sshleaf.ParseURI(d.Path)
	if err != nil {
		return err
	}
	cfg.AllowInsecure = allowInsecure
	return sshleaf.UploadFile(ctx, cfg, src, remoteDir)
}
