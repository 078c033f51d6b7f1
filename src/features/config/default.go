package config

import "time"

// createDefaultConfig creates a new Config with sensible default values
func createDefaultConfig() *Config {
	return &Config{
		Server: Server{
			PrintRoutes: false,
			Port:        3535,
		},
		Database: Database{
			Driver: "sqlite",
			Path:   "./playgraph.db",
			DSN:    "",
		},
		Logger: Logger{
			Enabled: true,
			Level:   "info",
			Format:  "text",
		},
		Provider: Provider{
			Enabled:           false,
			ClientID:          "", // SPOTIFY_CLIENT_ID
			ClientSecret:      "", // SPOTIFY_CLIENT_SECRET
			TokenURL:          "https://accounts.spotify.com/api/token",
			APIURL:            "https://api.spotify.com",
			RequestsPerSecond: 1.5,
			Burst:             1,
			BatchSize:         50,
			Workers:           2,
			Breaker: Breaker{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
			},
		},
		Backfill: Backfill{
			PageSize:        500,
			ScheduleEnabled: false,
			Interval:        6 * time.Hour,
		},
		Search: Limits{
			DefaultLimit: 10,
			MaxLimit:     50,
		},
		Recommend: Limits{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		Jobs: Jobs{
			Log:     true,
			LogPath: "./logs/jobs",
		},
		Demo: false,
	}
}
