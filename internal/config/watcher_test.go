package config_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/PennyNeko/Soph/internal/config"
)

const sophYAML = `
server:
  log_level: info
bot:
  name: Soph
  master_id: "1"
index:
  backend: memory
`

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func newWatcher(t *testing.T, apply func(config.ConfigDiff), opts ...config.WatcherOption) (*config.Watcher, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "soph.yaml")
	writeConfig(t, path, sophYAML)
	w, err := config.NewWatcher(path, apply, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path
}

func TestWatcher_RenameAndTimingReachApply(t *testing.T) {
	t.Parallel()

	diffs := make(chan config.ConfigDiff, 1)
	w, path := newWatcher(t, func(d config.ConfigDiff) { diffs <- d }, config.WithInterval(10*time.Millisecond))
	if got := w.Current().Bot.Name; got != "Soph" {
		t.Fatalf("initial bot.name = %q, want Soph", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	writeConfig(t, path, `
server:
  log_level: info
bot:
  name: Sophie
  master_id: "1"
  timing: true
index:
  backend: memory
`)

	select {
	case d := <-diffs:
		if !d.BotChanged || d.NewBot.Name != "Sophie" || !d.NewBot.Timing {
			t.Errorf("diff = %+v, want bot renamed to Sophie with timing on", d)
		}
		if d.LogLevelChanged || len(d.RestartRequired) != 0 {
			t.Errorf("diff = %+v, want only the bot section changed", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("apply was not called")
	}
	if got := w.Current().Bot.Name; got != "Sophie" {
		t.Errorf("Current().Bot.Name = %q, want Sophie", got)
	}
}

func TestWatcher_Reload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		content     string
		wantChanged bool
		wantErr     bool
		check       func(t *testing.T, d config.ConfigDiff)
	}{
		{
			name:    "same bytes",
			content: sophYAML,
		},
		{
			name:    "comment only",
			content: "# tuned\n" + sophYAML,
		},
		{
			name: "log level",
			content: `
server:
  log_level: debug
bot:
  name: Soph
  master_id: "1"
index:
  backend: memory
`,
			wantChanged: true,
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug || d.BotChanged {
					t.Errorf("diff = %+v, want only a debug log level", d)
				}
			},
		},
		{
			name: "new master",
			content: `
server:
  log_level: info
bot:
  name: Soph
  master_id: "42"
index:
  backend: memory
`,
			wantChanged: true,
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.BotChanged || d.NewBot.MasterID != "42" {
					t.Errorf("diff = %+v, want master_id 42", d)
				}
			},
		},
		{
			name: "mcp needs restart",
			content: `
server:
  log_level: info
bot:
  name: Soph
  master_id: "1"
index:
  backend: memory
mcp:
  enabled: true
`,
			wantChanged: true,
			check: func(t *testing.T, d config.ConfigDiff) {
				if d.BotChanged || !slices.Equal(d.RestartRequired, []string{"mcp"}) {
					t.Errorf("diff = %+v, want restart for mcp only", d)
				}
			},
		},
		{
			name: "invalid log level",
			content: `
server:
  log_level: bananas
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, path := newWatcher(t, nil)
			writeConfig(t, path, tt.content)

			d, changed, err := w.Reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Reload err = %v, wantErr %v", err, tt.wantErr)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v (diff %+v)", changed, tt.wantChanged, d)
			}
			if tt.check != nil {
				tt.check(t, d)
			}
			if tt.wantErr && w.Current().Server.LogLevel != config.LogInfo {
				t.Errorf("running config replaced by an invalid one: %+v", w.Current().Server)
			}
		})
	}
}

func TestWatcher_InvalidEditNeverApplied(t *testing.T) {
	t.Parallel()

	calls := make(chan config.ConfigDiff, 4)
	w, path := newWatcher(t, func(d config.ConfigDiff) { calls <- d }, config.WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	writeConfig(t, path, "bot: [not, a, mapping]\n")
	w.Run(ctx)

	if len(calls) != 0 {
		t.Errorf("apply called %d times for an invalid file", len(calls))
	}
	if got := w.Current().Bot.Name; got != "Soph" {
		t.Errorf("Current().Bot.Name = %q, want Soph", got)
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("expected error for a missing file")
	}
}
