package dfs

import "testing"

func TestRouterConfigRoot(t *testing.T) {
	cfg := RouterConfig{Home: "/home/dfs"}
	if got := cfg.Root(); got != "/home/dfs/S1" {
		t.Errorf("Root() = %q", got)
	}
}

func TestShardConfigRoot(t *testing.T) {
	cases := map[Extension]string{
		ExtPDF: "/home/dfs/S2",
		ExtTXT: "/home/dfs/S3",
		ExtZIP: "/home/dfs/S4",
	}
	for ext, want := range cases {
		cfg := ShardConfig{Extension: ext, Home: "/home/dfs"}
		if got := cfg.Root(); got != want {
			t.Errorf("%s: Root() = %q, want %q", ext, got, want)
		}
	}
}
