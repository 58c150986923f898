package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ravi-parthasarathy/graphopt/pkg/config"
	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
)

const fanOutDOT = `digraph fan {
    inputs="x,s,z"
    outputs="a,b"
    "tensor:x" [kind=tensor name=x dtype=float32 shape="1,4"]
    "tensor:s" [kind=tensor name=s dtype=float32]
    "tensor:z" [kind=tensor name=z dtype=uint8]
    q  [op=QuantizeLinear inputs="x,s,z" outputs="xq"]
    dq [op=DequantizeLinear inputs="xq,s,z" outputs="xd"]
    r1 [op=Relu inputs="xd" outputs="a"]
    r2 [op=Relu inputs="xd" outputs="b"]
}`

func writeGraph(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

// ─── TestInitLogger ───────────────────────────────────────────────────────────

func TestInitLogger_ValidLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "DEBUG", "INFO"} {
		if err := initLogger(lvl, "text"); err != nil {
			t.Errorf("initLogger(%q, text): unexpected error: %v", lvl, err)
		}
	}
}

func TestInitLogger_ValidFormats(t *testing.T) {
	for _, format := range []string{"text", "json", "TEXT", "JSON"} {
		if err := initLogger("info", format); err != nil {
			t.Errorf("initLogger(info, %q): unexpected error: %v", format, err)
		}
	}
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	if err := initLogger("verbose", "text"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestInitLogger_InvalidFormat(t *testing.T) {
	if err := initLogger("info", "xml"); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

// ─── TestOptimizeFiles ────────────────────────────────────────────────────────

func TestOptimizeFiles_SingleToWriter(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "fan.dot", fanOutDOT)

	var out bytes.Buffer
	reports, err := optimizeFiles(context.Background(), config.Default(), []string{path}, "", &out)
	if err != nil {
		t.Fatalf("optimizeFiles: %v", err)
	}
	if len(reports) != 1 || !reports[0].Changed() {
		t.Fatalf("reports = %+v, want one changed report", reports)
	}

	g, err := graph.ParseDOT(out.String())
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, out.String())
	}
	if n := g.NodeByName("xd_duplicate"); n == nil {
		t.Fatalf("missing duplicated dequantizer in:\n%s", out.String())
	}
	if got := len(g.Consumers("xd")); got != 1 {
		t.Errorf("xd consumers = %d, want 1", got)
	}
}

func TestOptimizeFiles_SeveralNeedOutDir(t *testing.T) {
	dir := t.TempDir()
	a := writeGraph(t, dir, "a.dot", fanOutDOT)
	b := writeGraph(t, dir, "b.dot", fanOutDOT)

	_, err := optimizeFiles(context.Background(), config.Default(), []string{a, b}, "", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "--out-dir") {
		t.Fatalf("expected --out-dir error, got %v", err)
	}
}

func TestOptimizeFiles_OutDir(t *testing.T) {
	dir := t.TempDir()
	a := writeGraph(t, dir, "a.dot", fanOutDOT)
	b := writeGraph(t, dir, "b.dot", strings.Replace(fanOutDOT, "digraph fan", "digraph other", 1))
	outDir := filepath.Join(dir, "out")

	cfg := config.Default()
	cfg.Jobs = 1
	reports, err := optimizeFiles(context.Background(), cfg, []string{a, b}, outDir, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("optimizeFiles: %v", err)
	}
	if reports[0].Graph != "fan" || reports[1].Graph != "other" {
		t.Errorf("reports out of order: %q, %q", reports[0].Graph, reports[1].Graph)
	}
	for _, name := range []string{"a.dot", "b.dot"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !strings.Contains(string(data), "anchor_tag=duplicate") {
			t.Errorf("%s lacks the duplicated node:\n%s", name, data)
		}
	}
}

func TestOptimizeFiles_CollidingNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	a := writeGraph(t, dir, "m.dot", fanOutDOT)
	b := writeGraph(t, filepath.Join(dir, "sub"), "m.dot", fanOutDOT)

	_, err := optimizeFiles(context.Background(), config.Default(), []string{a, b}, filepath.Join(dir, "out"), &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected an error for two inputs with the same base name")
	}
}

func TestOptimizeFiles_BadGraph(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "bad.dot", `digraph bad { outputs="y" }`)
	reports, err := optimizeFiles(context.Background(), config.Default(), []string{path}, "", &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for a graph output without a producer")
	}
	if reports[0] != nil {
		t.Errorf("report for unparsed graph = %+v, want nil", reports[0])
	}
}

// ─── commands ─────────────────────────────────────────────────────────────────

func TestRunCmd_WritesReport(t *testing.T) {
	dir := t.TempDir()
	path := writeGraph(t, dir, "fan.dot", fanOutDOT)
	reportPath := filepath.Join(dir, "report.json")

	out, err := execute(t, "run", path, "--fixpoint", "--passes", "duplicate_fan_out", "--report", reportPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "digraph fan") {
		t.Errorf("optimized graph not printed:\n%s", out)
	}

	reports, err := rewrite.LoadReports(reportPath)
	if err != nil {
		t.Fatalf("load report: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	r := reports[0]
	if !r.Converged || r.Rounds != 2 || r.NodesBefore != 4 || r.NodesAfter != 6 {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestRunCmd_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeGraph(t, dir, "fan.dot", fanOutDOT)
	cfgPath := filepath.Join(dir, "graphopt.yaml")
	if err := os.WriteFile(cfgPath, []byte("passes: [fold_qdq]\nlog:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath, "run", path)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if strings.Contains(out, "QuantizeLinear") {
		t.Errorf("quantize round trip not folded:\n%s", out)
	}
}

func TestRunCmd_UnknownPass(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "fan.dot", fanOutDOT)
	if _, err := execute(t, "run", path, "--passes", "nope"); err == nil {
		t.Fatal("expected error for unknown pass")
	}
}

func TestLintCmd(t *testing.T) {
	dir := t.TempDir()
	good := writeGraph(t, dir, "good.dot", fanOutDOT)

	out, err := execute(t, "lint", good)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if !strings.Contains(out, `OK: graph "fan" is valid (4 nodes, 7 edges)`) {
		t.Errorf("unexpected lint output: %s", out)
	}

	bad := writeGraph(t, dir, "bad.dot", `digraph bad {
    n [op=Relu inputs="missing" outputs="y"]
}`)
	out, err = execute(t, "lint", good, bad)
	if err == nil {
		t.Fatal("expected lint failure")
	}
	if !strings.Contains(out, "FAIL:") {
		t.Errorf("failure not reported: %s", out)
	}
}

func TestGraphCmd_Text(t *testing.T) {
	path := writeGraph(t, t.TempDir(), "fan.dot", fanOutDOT)
	out, err := execute(t, "graph", path)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	for _, want := range []string{"Graph: fan  (4 nodes, 7 edges)", "Inputs:  x, s, z", "DequantizeLinear", "xd  float32[1,4]  consumers=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "  q ") > strings.Index(out, "  dq ") {
		t.Errorf("nodes not in producer-first order:\n%s", out)
	}

	if _, err := execute(t, "graph", path, "--format", "svg"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestPassesCmd(t *testing.T) {
	out, err := execute(t, "passes")
	if err != nil {
		t.Fatalf("passes: %v", err)
	}
	for _, want := range []string{"* duplicate_fan_out", "* graph_output_identity", "  fold_qdq", "  remove_identity"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}
