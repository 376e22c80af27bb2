package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "github-harvester",
			Version: "0.0.1",
		},

		// Log
		Log: Log{
			Driver: "console",
			Level:  "info",
		},

		// Mysql
		Mysql: Mysql{
			Host:                  "127.0.0.1",
			Password:              "root",
			Username:              "root",
			Port:                  "3306",
			Database:              "github_harvester",
			MaxIdleConnection:     10,
			MaxOpenConnection:     100,
			MaxLifeTimeConnection: 3600,
		},

		// GithubApi
		GithubApi: GithubApi{
			ApiUrl:               "https://api.github.com",
			AccessTokens:         []string{},
			PerPage:              100,
			MaxRetries:           3,
			BackoffBaseMs:        500,
			RequestsPerSecond:    10,
			MinRequestIntervalMs: 500,
			RateLimitResetMin:    5,
			NominalQuota:         5000,
			SearchQuota:          30,
			CacheTtlMin:          60,
		},

		// Cache
		Cache: Cache{
			MaxFastEntries: 1000,
			Dir:            "data/cache",
			TtlMin:         1440,
		},

		// Analytics
		Analytics: Analytics{
			Path:            "data/events.duckdb",
			MaxScanBytes:    1 << 30,
			MaxLookbackDays: 30,
		},

		// Kafka
		Kafka: Kafka{
			Brokers: []string{"127.0.0.1:9092"},
			Producer: KafkaProducer{
				TopicRepo:        "harvester.repos",
				TopicContributor: "harvester.contributors",
				TopicOrg:         "harvester.orgs",
				TopicEvent:       "harvester.events",
			},
		},

		// Harvester
		Harvester: Harvester{
			Workers:   10,
			BatchSize: 1000,
			MinStars:  50,
			MaxRepos:  5000,
		},
	}, nil
}
