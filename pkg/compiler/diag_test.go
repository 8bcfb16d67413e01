package compiler

import (
	"bytes"
	"strings"
	"testing"

	"evsc/pkg/ident"
)

func TestLocate(t *testing.T) {
	src := "env a {\n\tdef f();\n}\n"
	tests := []struct {
		offset    int
		line, col int
	}{
		{0, 1, 1},
		{4, 1, 5},
		{8, 2, 1},
		{9, 2, 2},
		{len(src) - 1, 3, 2},
	}
	for _, tt := range tests {
		line, col := locate(src, tt.offset)
		if line != tt.line || col != tt.col {
			t.Errorf("locate(%d): expected %d:%d, got %d:%d", tt.offset, tt.line, tt.col, line, col)
		}
	}
}

func TestReporter_WarningPosition(t *testing.T) {
	in := ident.NewInterner()
	var buf bytes.Buffer
	rep := NewReporter(&buf, in)
	rep.AddFile("game.evs", "env a {\n\tuse std;\n}\n")

	rep.Warnf("game.evs", Span{Start: 9, End: 12}, "something looks off")
	if rep.Warnings() != 1 {
		t.Errorf("Expected 1 warning, counted %d", rep.Warnings())
	}
	out := buf.String()
	if !strings.Contains(out, "game.evs:2:2: ") {
		t.Errorf("Expected the warning to carry a position, got %q", out)
	}
	if !strings.Contains(out, "something looks off") {
		t.Errorf("Expected the warning message, got %q", out)
	}
}

func TestReporter_UnknownFileStillPrints(t *testing.T) {
	in := ident.NewInterner()
	var buf bytes.Buffer
	rep := NewReporter(&buf, in)
	rep.Warnf("mystery.evs", Span{Start: 3, End: 4}, "no source registered")
	if !strings.Contains(buf.String(), "mystery.evs: ") {
		t.Errorf("Expected the bare file name prefix, got %q", buf.String())
	}
}

func TestReporter_ReportDiagnostic(t *testing.T) {
	in := ident.NewInterner()
	var buf bytes.Buffer
	rep := NewReporter(&buf, in)
	rep.AddFile("a.evs", "pool = 70000;\n")

	rep.Report(&Diagnostic{Msg: "A pool size cannot be negative", Span: Span{Start: 0, End: 4}, File: "a.evs"})
	out := buf.String()
	if !strings.Contains(out, "a.evs:1:1: ") {
		t.Errorf("Expected a resolved position, got %q", out)
	}
	if !strings.Contains(out, "A pool size cannot be negative") {
		t.Errorf("Expected the message, got %q", out)
	}
}

func TestDiagnostic_Error(t *testing.T) {
	d := &Diagnostic{Msg: "Type quux not found"}
	if d.Error() != "Type quux not found" {
		t.Errorf("Unexpected Error(): %q", d.Error())
	}
	d.File = "a.evs"
	if d.Error() != "a.evs: Type quux not found" {
		t.Errorf("Expected the file prefix, got %q", d.Error())
	}
}
