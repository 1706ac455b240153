package cfg

type Cfg struct {
	// Database configuration
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Response cache configuration
	RedisAddr string
	CacheTTL  int

	// Application configuration
	SourceFile        string
	Port              string
	WorkerCount       int
	SchedulerInterval int
	RefreshInterval   int
	BatchSize         int
	APIAccessKey      string
	Once              bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// DSN returns the connection string for the configured driver.
func (c *Cfg) DSN() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}
