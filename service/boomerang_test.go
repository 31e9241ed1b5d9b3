package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

// fakeRunner records ffmpeg invocations and fabricates each step's output
// file, failing at failAt (1-based) if set.
type fakeRunner struct {
	calls  [][]string
	failAt int
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return errors.New("ffmpeg exited with status 1")
	}
	// ffmpeg writes its output to the final positional argument.
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("video"), 0644)
}

func writeSource(t *testing.T) string {
	t.Helper()
	input := filepath.Join(t.TempDir(), "watch_abc12345.mp4")
	if err := os.WriteFile(input, []byte("source"), 0644); err != nil {
		t.Fatal(err)
	}
	return input
}

func TestBoomerangProcess(t *testing.T) {
	runner := &fakeRunner{}
	pipeline := newBoomerangWithRunner(runner.run)
	input := writeSource(t)

	final, err := pipeline.Process(context.Background(), input)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	base := strings.TrimSuffix(input, ".mp4")
	if final != base+"_final.mp4" {
		t.Errorf("unexpected final path: %s", final)
	}
	if _, err := os.Stat(final); err != nil {
		t.Errorf("final file missing: %v", err)
	}

	if len(runner.calls) != 3 {
		t.Fatalf("expected 3 ffmpeg invocations, got %d", len(runner.calls))
	}

	reverse := strings.Join(runner.calls[0], " ")
	if !strings.Contains(reverse, "-vf reverse") || !strings.Contains(reverse, input) {
		t.Errorf("unexpected reverse invocation: %s", reverse)
	}

	concat := strings.Join(runner.calls[1], " ")
	if !strings.Contains(concat, "-f concat") || !strings.Contains(concat, "-c copy") {
		t.Errorf("unexpected concat invocation: %s", concat)
	}

	speed := strings.Join(runner.calls[2], " ")
	if !strings.Contains(speed, "setpts=0.75*PTS") {
		t.Errorf("speed step missing setpts rescale: %s", speed)
	}
	if !strings.Contains(speed, "-an") {
		t.Errorf("speed step does not strip audio: %s", speed)
	}

	// No intermediate artifacts survive a successful run.
	for _, suffix := range []string{"_reversed.mp4", "_combined.mp4", "_list.txt", "_final.mp4.part"} {
		if _, err := os.Stat(base + suffix); !os.IsNotExist(err) {
			t.Errorf("intermediate %s left on disk", suffix)
		}
	}
}

func TestBoomerangConcatListContents(t *testing.T) {
	var listContents string
	runner := func(ctx context.Context, name string, args ...string) error {
		for _, a := range args {
			if strings.HasSuffix(a, "_list.txt") {
				data, _ := os.ReadFile(a)
				listContents = string(data)
			}
		}
		return os.WriteFile(args[len(args)-1], []byte("video"), 0644)
	}
	pipeline := newBoomerangWithRunner(runner)
	input := writeSource(t)

	if _, err := pipeline.Process(context.Background(), input); err != nil {
		t.Fatalf("Process: %v", err)
	}

	base := strings.TrimSuffix(input, ".mp4")
	want := "file '" + input + "'\nfile '" + base + "_reversed.mp4'\n"
	if listContents != want {
		t.Errorf("concat list = %q, want %q", listContents, want)
	}
}

func TestBoomerangStepFailureCleansUp(t *testing.T) {
	for _, failAt := range []int{1, 2, 3} {
		runner := &fakeRunner{failAt: failAt}
		pipeline := newBoomerangWithRunner(runner.run)
		input := writeSource(t)

		_, err := pipeline.Process(context.Background(), input)
		if err == nil {
			t.Fatalf("failAt=%d: expected error", failAt)
		}
		if !errors.Is(err, &apperr.Error{Code: apperr.CodeProcessing}) {
			t.Errorf("failAt=%d: expected PROCESSING classification, got %v", failAt, err)
		}
		if len(runner.calls) != failAt {
			t.Errorf("failAt=%d: pipeline ran %d steps after failure", failAt, len(runner.calls))
		}

		base := strings.TrimSuffix(input, ".mp4")
		if _, statErr := os.Stat(base + "_final.mp4"); !os.IsNotExist(statErr) {
			t.Errorf("failAt=%d: final file visible after failure", failAt)
		}
		for _, suffix := range []string{"_reversed.mp4", "_combined.mp4", "_list.txt", "_final.mp4.part"} {
			if _, statErr := os.Stat(base + suffix); !os.IsNotExist(statErr) {
				t.Errorf("failAt=%d: intermediate %s left on disk", failAt, suffix)
			}
		}
	}
}

func TestBoomerangMissingInput(t *testing.T) {
	pipeline := newBoomerangWithRunner((&fakeRunner{}).run)

	_, err := pipeline.Process(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"))
	if !errors.Is(err, &apperr.Error{Code: apperr.CodeProcessing}) {
		t.Errorf("expected PROCESSING classification, got %v", err)
	}
}
