package pipeline

import (
	"strings"
	"testing"
)

// TestPipeBuilderScenario mirrors the worked example: tar producing two
// stdout files (a, b) and one stdout program (md5sum -, writing to c).
// Exactly one FIFO must be created, feeding md5sum.
func TestPipeBuilderScenario(t *testing.T) {
	md5sum := &Node{Argv: []string{"md5sum", "-"}}
	md5sum.AddStdoutFile("c")

	root := &Node{Argv: []string{"tar", "cf", "-"}}
	root.AddStdoutFile("a")
	root.AddStdoutFile("b")
	root.AddStdoutProgram(md5sum)

	script, err := Render(root, "/tmp/work")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(script.Fifos) != 1 {
		t.Fatalf("expected exactly 1 FIFO, got %d: %v", len(script.Fifos), script.Fifos)
	}
	fifo := script.Fifos[0]

	if !strings.Contains(script.Text, "mkfifo "+fifo) {
		t.Errorf("script missing mkfifo for %s:\n%s", fifo, script.Text)
	}
	if !strings.Contains(script.Text, "md5sum - < '"+fifo+"' > 'c' &") {
		t.Errorf("script missing md5sum consumer line:\n%s", script.Text)
	}
	// tar's stdout now has three targets: a, b, and the fifo. The order of
	// a and the fifo relative to each other isn't fixed, but all three
	// must be present and tee must be used since there are 3 targets.
	if !strings.Contains(script.Text, "tar cf -") || !strings.Contains(script.Text, "| tee") {
		t.Errorf("expected tar's stdout teed across 3 targets:\n%s", script.Text)
	}
	for _, want := range []string{"'a'", "'b'", "'" + fifo + "'"} {
		if !strings.Contains(script.Text, want) {
			t.Errorf("script missing stdout target %s:\n%s", want, script.Text)
		}
	}
	if !strings.Contains(script.Text, "\nwait\n") {
		t.Errorf("script missing wait:\n%s", script.Text)
	}
	if !strings.Contains(script.Text, "rm -f "+fifo) {
		t.Errorf("script missing fifo cleanup:\n%s", script.Text)
	}
}

func TestStderrFanoutSynthesizesAuxTee(t *testing.T) {
	root := &Node{Argv: []string{"pg_dump", "mydb"}}
	root.AddStderrFile("err1.log")
	root.AddStderrFile("err2.log")
	root.AddStdoutFile("dump.sql")

	script, err := Render(root, "/tmp/work")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(script.Fifos) != 1 {
		t.Fatalf("expected exactly 1 FIFO for stderr fanout, got %d", len(script.Fifos))
	}
	if !strings.Contains(script.Text, "tee 'err1.log'") || !strings.Contains(script.Text, "> 'err2.log'") {
		t.Errorf("expected aux tee command, got:\n%s", script.Text)
	}
	if !strings.Contains(script.Text, "2> '"+script.Fifos[0]+"'") {
		t.Errorf("expected root's stderr redirected into the aux fifo, got:\n%s", script.Text)
	}
}

func TestSingleStdoutFileUsesPlainRedirect(t *testing.T) {
	root := &Node{Argv: []string{"cat", "x"}}
	root.AddStdoutFile("out")

	script, err := Render(root, "/tmp/work")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(script.Fifos) != 0 {
		t.Errorf("expected no fifos, got %v", script.Fifos)
	}
	if !strings.Contains(script.Text, "cat x > 'out'") {
		t.Errorf("expected plain redirect, got:\n%s", script.Text)
	}
}

func TestAppendWriteMode(t *testing.T) {
	root := &Node{Argv: []string{"cat", "x"}, WriteMode: Append}
	root.AddStdoutFile("out")

	script, err := Render(root, "/tmp/work")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(script.Text, "cat x >> 'out'") {
		t.Errorf("expected append redirect, got:\n%s", script.Text)
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("a'b")
	want := `'a'\''b'`
	if got != want {
		t.Errorf("shellQuote(a'b) = %s, want %s", got, want)
	}
}
