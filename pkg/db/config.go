package db

// Config carries the connection settings for the loyalty database.
// Type selects the dialect: postgres, mysql or sqlite.
type Config struct {
	Type     string
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string

	// Pool settings. Zero values fall back to the driver defaults.
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}
