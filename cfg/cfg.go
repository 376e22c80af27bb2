package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Log struct {
		Driver string
		Level  string
	}

	Mysql struct {
		Host                  string
		Port                  string
		Username              string
		Password              string
		Database              string
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	GithubApi struct {
		ApiUrl               string
		AccessTokens         []string
		PerPage              int
		MaxRetries           int
		BackoffBaseMs        int
		RequestsPerSecond    int
		MinRequestIntervalMs int
		RateLimitResetMin    int
		NominalQuota         int
		SearchQuota          int
		CacheTtlMin          int
	}

	Cache struct {
		MaxFastEntries int
		Dir            string
		TtlMin         int
	}

	Analytics struct {
		Path            string
		MaxScanBytes    int64
		MaxLookbackDays int
	}

	KafkaProducer struct {
		TopicRepo        string
		TopicContributor string
		TopicOrg         string
		TopicEvent       string
	}

	Kafka struct {
		Brokers  []string
		Producer KafkaProducer
	}

	Harvester struct {
		Workers   int
		BatchSize int
		MinStars  int
		MaxRepos  int
	}
)

type Config struct {
	App       App
	Log       Log
	Mysql     Mysql
	GithubApi GithubApi
	Cache     Cache
	Analytics Analytics
	Kafka     Kafka
	Harvester Harvester
}
