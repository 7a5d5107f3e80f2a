// Package archivepipe implements the archive command: the WAL archival
// pipeline invoked once per completed segment by PostgreSQL's
// archive_command. A segment is compressed once, its digest persisted in
// per-segment state, then delivered to every configured destination, so a
// retried invocation skips work it already finished.
package archivepipe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"omnipitr/internal/cloud"
	"omnipitr/internal/compress"
	"omnipitr/internal/destination"
	"omnipitr/internal/digest"
	"omnipitr/internal/logger"
	"omnipitr/internal/runner"
	"omnipitr/internal/sshleaf"
	"omnipitr/internal/state"
	"omnipitr/internal/supervisor"
	"omnipitr/internal/walseg"
)

// Options configures one archive invocation.
type Options struct {
	DataDir string
	StateDir string
	TempDir string
	Destinations []destination.Destination
	Binary compress.Binary
	RsyncPath string
	ParallelJobs int
	Log logger.Logger
	// Runner executes delivery subprocesses (rsync/pipe). Defaults to the
	// real os/exec-backed runner; tests inject a fake.
	Runner runner.Runner
	// AllowInsecureSSH skips host-key verification for ssh:// destinations.
	AllowInsecureSSH bool
}

// Run executes the archive command for one segment, returning a non-nil
// error iff PostgreSQL should retry: exit 0 lets PostgreSQL recycle the
// segment, exit non-zero makes it retry indefinitely.
func Run(ctx context.Context, opts Options, segment string) error {
	segPath := segment
	if !filepath.IsAbs(segPath) {
		segPath = filepath.Join(opts.DataDir, segment)
	}

	info, err := os.Stat(segPath)
	if err != nil {
		return fmt.Errorf("archivepipe: stat %s: %w", segPath, err)
	}
	if err := walseg.Validate(segment, info.Size()); err != nil {
		return fmt.Errorf("archivepipe: %w", err)
	}

	if opts.ParallelJobs < 1 {
		opts.ParallelJobs = 1
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNullLogger()
	}
	rn := opts.Runner
	if rn == nil {
		rn = runner.New()
	}

	dests := make([]destination.Destination, len(opts.Destinations))
	for i, d := range opts.Destinations {
		if d.Compression == "" {
			d.Compression = compress.None
		}
		dests[i] = d
	}
	opts.Destinations = dests

	needState := len(opts.Destinations) > 1
	st, err := state.Load(opts.StateDir, segment)
	if err != nil {
		return fmt.Errorf("archivepipe: %w", err)
	}

	requiredTypes := requiredCompressionTypes(opts.Destinations)
	compressor := compress.Compressor{Bin: opts.Binary, Run: rn}

	artifactPaths := map[compress.Type]string{compress.None: segPath}
	for _, t := range requiredTypes {
		if t == compress.None {
			continue
		}
		artifactPath := filepath.Join(opts.TempDir, segment+t.Ext())

		if cached, ok := st.CompressedMD5(string(t)); ok {
			if md5, err := digest.MD5File(artifactPath); err == nil && md5 == cached {
				artifactPaths[t] = artifactPath
				continue
			}
		}

		if err := os.MkdirAll(opts.TempDir, 0700); err != nil {
			return fmt.Errorf("archivepipe: mkdir %s: %w", opts.TempDir, err)
		}
		log.Debug("compressing segment", "segment", segment, "type", string(t))
		if err := compressor.CompressFile(ctx, t, segPath, artifactPath); err != nil {
			return fmt.Errorf("archivepipe: %w", err)
		}
		md5, err := digest.MD5File(artifactPath)
		if err != nil {
			return fmt.Errorf("archivepipe: %w", err)
		}
		st.SetCompressed(string(t), md5)
		if needState {
			if err := st.Save(opts.StateDir, segment); err != nil {
				return fmt.Errorf("archivepipe: %w", err)
			}
		}
		artifactPaths[t] = artifactPath
	}

	pending := pendingDeliveries(opts.Destinations, st)

	var subprocessDests, cloudDests, sshDests []destination.Destination
	for _, d := range pending {
		switch {
			case d.Kind.IsCloud():
			cloudDests = append(cloudDests, d)
			case d.Kind == destination.SSH:
			sshDests = append(sshDests, d)
			default:
			subprocessDests = append(subprocessDests, d)
		}
	}

	sup := supervisor.New(opts.ParallelJobs, rn)
	jobs := make([]supervisor.Job, 0, len(subprocessDests))
	for _, d := range subprocessDests {
		src, ok := artifactPaths[d.Compression]
		if !ok {
			return fmt.Errorf("archivepipe: no artifact available for compression type %q", d.Compression)
		}
		jobs = append(jobs, buildDeliveryJob(d, src, segment, opts.RsyncPath))
	}
	results := sup.Run(ctx, jobs)

	var failed bool
	for i, res := range results {
		d := subprocessDests[i]
		if res.Ok() {
			st.MarkSent(string(d.Kind), d.Path)
			log.Info("delivered segment", "segment", segment, "destination", d.String())
			continue
		}
		if d.Backup {
			log.Warn("backup destination delivery failed, ignoring", "segment", segment, "destination", d.String(), "error", res.Err, "stderr", string(res.Stderr))
			continue
		}
		failed = true
		log.Error("delivery failed", "segment", segment, "destination", d.String(), "error", res.Err, "stderr", string(res.Stderr))
	}

	for _, d := range cloudDests {
		src, ok := artifactPaths[d.Compression]
		if !ok {
			return fmt.Errorf("archivepipe: no artifact available for compression type %q", d.Compression)
		}
		if err := deliverToCloud(ctx, d, src, segment); err != nil {
			if d.Backup {
				log.Warn("backup destination delivery failed, ignoring", "segment", segment, "destination", d.String(), "error", err)
				continue
			}
			failed = true
			log.Error("cloud delivery failed", "segment", segment, "destination", d.String(), "error", err)
			continue
		}
		st.MarkSent(string(d.Kind), d.Path)
		log.Info("delivered segment", "segment", segment, "destination", d.String())
	}

	for _, d := range sshDests {
		src, ok := artifactPaths[d.Compression]
		if !ok {
			return fmt.Errorf("archivepipe: no artifact available for compression type %q", d.Compression)
		}
		if err := deliverToSSH(ctx, opts.AllowInsecureSSH, d, src); err != nil {
			if d.Backup {
				log.Warn("backup destination delivery failed, ignoring", "segment", segment, "destination", d.String(), "error", err)
				continue
			}
			failed = true
			log.Error("ssh delivery failed", "segment", segment, "destination", d.String(), "error", err)
			continue
		}
		st.MarkSent(string(d.Kind), d.Path)
		log.Info("delivered segment", "segment", segment, "destination", d.String())
	}

	if failed {
		if err := st.Save(opts.StateDir, segment); err != nil {
			log.Error("failed to persist state after partial failure", "segment", segment, "error", err)
		}
		return fmt.Errorf("archivepipe: one or more destinations failed for segment %s", segment)
	}

	if err := os.RemoveAll(opts.TempDir); err != nil {
		log.Warn("failed to remove tempdir", "tempdir", opts.TempDir, "error", err)
	}
	if err := state.Delete(opts.StateDir, segment); err != nil {
		log.Warn("failed to delete state file", "segment", segment, "error", err)
	}
	return nil
}

// requiredCompressionTypes computes the union of compression types any
// destination needs.
func requiredCompressionTypes(dests []destination.Destination) []compress.Type {
	seen := map[compress.Type]bool{}
	var types []compress.Type
	for _, d := range dests {
		if d.Compression == compress.None {
			continue
		}
		if !seen[d.Compression] {
			seen[d.Compression] = true
			types = append(types, d.Compression)
		}
	}
	return types
}

// pendingDeliveries filters out destinations already recorded as sent.
func pendingDeliveries(dests []destination.Destination, st *state.File) []destination.Destination {
	var pending []destination.Destination
	for _, d := range dests {
		if st.IsSent(string(d.Kind), d.Path) {
			continue
		}
		pending = append(pending, d)
	}
	return pending
}

// deliverToCloud uploads src to an s3/azure/gcs destination, the
// cloud-storage counterpart of the rsync/pipe delivery path. The
// destination's Path is a cloud URI such as s3://bucket/prefix; the
// segment's basename is appended.
func deliverToCloud(ctx context.Context, d destination.Destination, src, segment string) error {
	uri, err := cloud.ParseCloudURI(d.Path)
	if err != nil {
		return fmt.Errorf("archivepipe: %w", err)
	}
	backend, err := cloud.NewBackend(uri.ToConfig())
	if err != nil {
		return fmt.Errorf("archivepipe: %w", err)
	}
	remotePath := uri.BuildRemotePath(filepath.Base(src))
	if err := backend.Upload(ctx, src, remotePath, nil); err != nil {
		return fmt.Errorf("archivepipe: cloud upload of %s to %s: %w", segment, d.Path, err)
	}
	return nil
}

// deliverToSSH streams src into an ssh:// destination using an in-process
// SSH client instead of shelling out to the ssh/rsync binaries.
func deliverToSSH(ctx context.Context, allowInsecure bool, d destination.Destination, src string) error {
	cfg, remoteDir, err := sshleaf.ParseURI(d.Path)
	if err != nil {
		return fmt.Errorf("archivepipe: %w", err)
	}
	cfg.AllowInsecure = allowInsecure
	if err := sshleaf.UploadFile(ctx, cfg, src, remoteDir); err != nil {
		return fmt.Errorf("archivepipe: %w", err)
	}
	return nil
}

// buildDeliveryJob builds the supervisor job for one destination transfer:
// rsync -t for local/remote, exec+stdin for pipe.
func buildDeliveryJob(d destination.Destination, src, segment, rsyncPath string) supervisor.Job {
	if rsyncPath == "" {
		rsyncPath = "rsync"
	}

	switch d.Kind {
		case destination.Pipe:
		job := supervisor.Job{
			Argv: []string{d.Path, filepath.Base(src)},
			Label: d.String(),
		}
		if f, err := os.Open(src); err == nil {
			job.Stdin = f
		}
		return job
		default: // local, remote, and the degraded dst-backup path all use rsync -t
		dstPath := filepath.Join(d.Path, filepath.Base(src))
		return supervisor.Job{
			Argv: []string{rsyncPath, "-t", src, dstPath},
			Label: d.String(),
		}
	}
}
