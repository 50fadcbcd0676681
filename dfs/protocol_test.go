package dfs

import "testing"

func TestParseCommand(t *testing.T) {
	cmd := ParseCommand("uploadf report.pdf ~/S1/docs")
	if cmd.Verb != "uploadf" {
		t.Fatalf("verb = %q", cmd.Verb)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "report.pdf" || cmd.Args[1] != "~/S1/docs" {
		t.Fatalf("args = %v", cmd.Args)
	}
}

func TestParseCommandEmptyLine(t *testing.T) {
	cmd := ParseCommand("   ")
	if cmd.Verb != "" || cmd.Args != nil {
		t.Fatalf("expected zero-value Command, got %+v", cmd)
	}
}

func TestErrorAndSuccessLineFormatting(t *testing.T) {
	if got := errorLine("file not found"); got != "ERROR: file not found" {
		t.Fatalf("errorLine = %q", got)
	}
	if got := successLine("sent %d bytes", 42); got != "SUCCESS: sent 42 bytes" {
		t.Fatalf("successLine = %q", got)
	}
}

func TestShardIndex(t *testing.T) {
	cases := map[Extension]int{ExtC: 0, ExtPDF: 2, ExtTXT: 3, ExtZIP: 4}
	for ext, want := range cases {
		if got := ext.ShardIndex(); got != want {
			t.Errorf("%s.ShardIndex() = %d, want %d", ext, got, want)
		}
	}
}
