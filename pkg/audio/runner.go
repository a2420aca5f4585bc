package audio

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/logging"
)

// Runner lets tests stub the ffmpeg and ffprobe binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := logging.NewLogger(ctx)
	start := time.Now()
	log.Debugf("running command cmd_line=%q", strings.Join(append([]string{name}, args...), " "))

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		log.Errorf("exec failed cmd=%s duration_ms=%d error=%v stderr=%q",
			name, time.Since(start).Milliseconds(), err, truncate(errb.String(), 8<<10))
	} else {
		log.Debugf("exec ok cmd=%s duration_ms=%d stdout_bytes=%d", name, time.Since(start).Milliseconds(), out.Len())
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
