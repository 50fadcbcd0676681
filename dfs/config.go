package dfs

// RouterConfig configures the client-facing router process.
type RouterConfig struct {
	Name            string               `yaml:"Name" validate:"required,max=50"`
	Interface       string               `yaml:"Interface"`
	Port            int                  `yaml:"Port" validate:"required"`
	Home            string               `yaml:"Home" validate:"required"` // expansion of "~"; router's own root is Home/S1
	ShardAddrs      map[Extension]string `yaml:"ShardAddrs"`                // pdf/txt/zip -> host:port
	LogLevel        string               `yaml:"LogLevel"`
	LogFile         string               `yaml:"LogFile"`
	SentryDSN       string               `yaml:"SentryDSN"`
	EnableDiscovery bool                 `yaml:"EnableDiscovery"`
	APIAddr         string               `yaml:"APIAddr"`
	APIKey          string               `yaml:"APIKey"`
	RedisAddr       string               `yaml:"RedisAddr"`
}

// ShardConfig configures a single typed shard process.
type ShardConfig struct {
	Extension Extension `yaml:"Extension" validate:"required"`
	Interface string    `yaml:"Interface"`
	Port      int       `yaml:"Port" validate:"required"`
	Home      string    `yaml:"Home" validate:"required"` // shard's own root is Home/S<n>
	LogLevel  string    `yaml:"LogLevel"`
	LogFile   string    `yaml:"LogFile"`
	Archiver  string    `yaml:"Archiver"` // "inprocess" (default) or "subprocess"
}

// ClientConfig configures the interactive REPL client.
type ClientConfig struct {
	RouterAddr string `yaml:"RouterAddr" validate:"required,hostname_port"`
	LocalHome  string `yaml:"LocalHome"` // local filesystem directory files are read from / written to
}

// Root returns the real on-disk path backing the router's S1 tree.
func (c RouterConfig) Root() string {
	return ExpandHome(VirtualRoot, c.Home)
}

// Root returns the real on-disk path backing this shard's subtree.
func (c ShardConfig) Root() string {
	return ExpandHome("~/"+shardRootSegment(c.Extension), c.Home)
}
