// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package freeze

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/bundlepipe/lib/bundle"
	"github.com/bureau-foundation/bundlepipe/lib/process"
	"github.com/bureau-foundation/bundlepipe/lib/process/processtest"
	"github.com/bureau-foundation/bundlepipe/lib/pyruntime"
	"github.com/bureau-foundation/bundlepipe/lib/testutil"
)

func fixture(t *testing.T, layout bundle.Layout) (pyruntime.Runtime, Options) {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"src/main.py": "print('hello')\n",
	})
	return pyruntime.Runtime{VenvDir: filepath.Join(root, "venv")}, Options{
		SourceDir: filepath.Join(root, "src"),
		Entry:     "main.py",
		Name:      "Demo",
		Layout:    layout,
		DistDir:   filepath.Join(root, "dist"),
		WorkDir:   filepath.Join(root, "build"),
	}
}

// pyinstaller simulates a successful PyInstaller run by writing the
// bundle its flags ask for.
func pyinstaller(t *testing.T) processtest.Handler {
	return func(invocation process.Invocation) (process.Result, error) {
		args := invocation.Args
		value := func(flag string) string {
			index := slices.Index(args, flag)
			if index < 0 || index+1 >= len(args) {
				t.Fatalf("missing %s in %v", flag, args)
			}
			return args[index+1]
		}
		name, dist := value("--name"), value("--distpath")
		files := map[string]string{}
		if slices.Contains(args, "--windowed") {
			files[name+".app/Contents/MacOS/"+name] = "binary"
			files[name+".app/Contents/Info.plist"] = "<plist/>"
		} else {
			files[name+"/"+name] = "binary"
			files[name+"/_internal/base_library.zip"] = "zip"
		}
		testutil.WriteTree(t, dist, files)
		return process.Result{Output: []byte("Building EXE completed successfully.\n")}, nil
	}
}

func TestSynthesizeLayouts(t *testing.T) {
	t.Parallel()

	for _, layout := range []bundle.Layout{bundle.LayoutApp, bundle.LayoutOnedir} {
		t.Run(string(layout), func(t *testing.T) {
			t.Parallel()
			rt, options := fixture(t, layout)
			runner := processtest.New().On(processtest.Args("-m", "PyInstaller"), pyinstaller(t))

			result, err := Synthesize(context.Background(), runner, rt, options)
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if result.Name != "Demo" || result.Layout != layout {
				t.Errorf("bundle = %+v", result)
			}
			if _, err := os.Stat(result.Executable()); err != nil {
				t.Errorf("executable: %v", err)
			}

			calls := runner.Calls()
			if len(calls) != 1 {
				t.Fatalf("calls = %v", runner.CommandLines())
			}
			call := calls[0]
			if call.Name != rt.Python() || call.Dir != options.SourceDir {
				t.Errorf("invocation = %+v", call)
			}
			if last := call.Args[len(call.Args)-1]; last != filepath.Join(options.SourceDir, "main.py") {
				t.Errorf("entry argument = %q", last)
			}
			if got := slices.Contains(call.Args, "--windowed"); got != (layout == bundle.LayoutApp) {
				t.Errorf("--windowed present = %v for layout %s", got, layout)
			}
		})
	}
}

func TestSynthesizeMissingEntryRunsNothing(t *testing.T) {
	t.Parallel()

	rt, options := fixture(t, bundle.LayoutApp)
	options.Entry = "absent.py"
	runner := processtest.New().On(processtest.Any(), pyinstaller(t))

	_, err := Synthesize(context.Background(), runner, rt, options)
	if !errors.Is(err, ErrEntryMissing) {
		t.Fatalf("error = %v, want ErrEntryMissing", err)
	}
	if len(runner.Calls()) != 0 {
		t.Errorf("nothing should run: %v", runner.CommandLines())
	}
	if _, err := os.Stat(options.DistDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dist directory should not exist: %v", err)
	}
}

func TestSynthesizeEntryIsDirectory(t *testing.T) {
	t.Parallel()

	rt, options := fixture(t, bundle.LayoutApp)
	options.Entry = "."
	_, err := Synthesize(context.Background(), processtest.New(), rt, options)
	if !errors.Is(err, ErrEntryMissing) {
		t.Fatalf("error = %v, want ErrEntryMissing", err)
	}
}

func TestSynthesizeFreezerFailure(t *testing.T) {
	t.Parallel()

	rt, options := fixture(t, bundle.LayoutApp)
	runner := processtest.New().
		On(processtest.Args("-m", "PyInstaller"), processtest.Exit(1, "ModuleNotFoundError: No module named 'pygame'"))

	_, err := Synthesize(context.Background(), runner, rt, options)
	if !errors.Is(err, ErrFreezer) {
		t.Fatalf("error = %v, want ErrFreezer", err)
	}
	if !strings.Contains(err.Error(), "pygame") {
		t.Errorf("error should carry output tail: %v", err)
	}
}

func TestSynthesizeMissingStructure(t *testing.T) {
	t.Parallel()

	rt, options := fixture(t, bundle.LayoutApp)
	runner := processtest.New().
		On(processtest.Args("-m", "PyInstaller"), func(process.Invocation) (process.Result, error) {
			// Exits zero but produces a onedir tree instead of an .app.
			testutil.WriteTree(t, options.DistDir, map[string]string{"Demo/Demo": "binary"})
			return process.Result{}, nil
		})

	_, err := Synthesize(context.Background(), runner, rt, options)
	if !errors.Is(err, bundle.ErrMalformed) {
		t.Fatalf("error = %v, want ErrMalformed", err)
	}
}

func TestCommandArguments(t *testing.T) {
	t.Parallel()

	rt, options := fixture(t, bundle.LayoutOnedir)
	options.Args = []string{"--icon", "icon.icns"}
	invocation, err := Command(rt, options)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	want := []string{
		"-m", "PyInstaller", "--noconfirm", "--clean", "--log-level", "WARN",
		"--name", "Demo",
		"--distpath", options.DistDir,
		"--workpath", options.WorkDir,
		"--specpath", options.WorkDir,
		"--onedir",
		"--icon", "icon.icns",
		filepath.Join(options.SourceDir, "main.py"),
	}
	if !slices.Equal(invocation.Args, want) {
		t.Errorf("args = %v\nwant %v", invocation.Args, want)
	}

	options.Name = "Demo.app"
	if _, err := Command(rt, options); err == nil {
		t.Error("expected error for a name with .app suffix")
	}
}
