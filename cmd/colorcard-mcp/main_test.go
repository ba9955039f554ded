package main

import (
	"bytes"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// execute runs the root command in-process and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		// Flag values outlive Execute; put back the defaults.
		rootFlags.config, rootFlags.logLevel, rootFlags.logFormat = "", "", "text"
		correctFlags.output = ""
		batchFlags.parallel, batchFlags.strict = 4, false
		renderTargetFlags.scale = 4
	})
	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig writes a config that reads files as sRGB, matching render-target.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "colorcard.yaml")
	cfg := "correction:\n  input_color_space: srgb\n"
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderCorrectApply(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	target := filepath.Join(dir, "target.png")

	out, err := execute(t, "--config", cfg, "--log-level", "warn", "render-target", target, "--scale", "1.5")
	if err != nil {
		t.Fatalf("render-target: %v", err)
	}
	if !strings.HasPrefix(out, target) {
		t.Errorf("render-target output: %q", out)
	}

	corrected := filepath.Join(dir, "corrected.png")
	out, err = execute(t, "--config", cfg, "--log-level", "warn", "correct", target, "-o", corrected)
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	var report calibrate.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("correct output is not a report: %v\n%s", err, out)
	}
	if report.Correction == nil || report.Correction.UsablePatches == 0 {
		t.Fatalf("correction: %+v", report.Correction)
	}
	if report.Correction.AverageDeltaE >= 3 {
		t.Errorf("average ΔE %.3f on a rendered target", report.Correction.AverageDeltaE)
	}
	if _, err := os.Stat(corrected); err != nil {
		t.Fatalf("corrected image not written: %v", err)
	}

	reportPath := filepath.Join(dir, "report.json")
	if err := os.WriteFile(reportPath, []byte(out), 0644); err != nil {
		t.Fatal(err)
	}
	applied := filepath.Join(dir, "applied.png")
	if _, err := execute(t, "--config", cfg, "apply", target, "-c", reportPath, "-o", applied); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := os.Stat(applied); err != nil {
		t.Fatalf("applied image not written: %v", err)
	}
}

func TestCorrect_NoCard(t *testing.T) {
	dir := t.TempDir()
	blank := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for i := range blank.Pix {
		blank.Pix[i] = 0xE0
	}
	path := filepath.Join(dir, "blank.png")
	if err := imaging.Save(blank, path); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "--config", writeConfig(t, dir), "correct", path)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := calibrate.ErrorKind(err); kind != "InsufficientMarkers" {
		t.Errorf("ErrorKind = %q, want InsufficientMarkers", kind)
	}

	// batch reports the same failure per item and only fails with --strict.
	out, err := execute(t, "--config", writeConfig(t, dir), "batch", path, "--parallel", "1")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var items []calibrate.BatchItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("batch output: %v\n%s", err, out)
	}
	if len(items) != 1 || items[0].Kind != "InsufficientMarkers" {
		t.Errorf("items: %+v", items)
	}
	if _, err := execute(t, "--config", writeConfig(t, dir), "batch", path, "--strict"); err == nil {
		t.Error("batch --strict should fail")
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("detection:\n  grid_rows: 5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "--config", path, "render-target", filepath.Join(dir, "x.png"))
	if kind := calibrate.ErrorKind(err); kind != "InvalidConfig" {
		t.Errorf("ErrorKind = %q, want InvalidConfig (err %v)", kind, err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "colorcard-mcp "+version) {
		t.Errorf("version output: %q", out)
	}
}

func TestUnknownLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "version"); err == nil {
		t.Error("expected error for unknown log level")
	}
}
