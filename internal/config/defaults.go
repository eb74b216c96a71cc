package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/hinto/data/hints.db"
	}
	if cfg.Storage.Namespace == "" {
		cfg.Storage.Namespace = "hints"
	}
	if cfg.Embedding.Strategy == "" {
		cfg.Embedding.Strategy = StrategyTFIDF
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1000
	}
	if cfg.Embedding.Remote.BaseURL == "" {
		cfg.Embedding.Remote.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Remote.Model == "" {
		cfg.Embedding.Remote.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Remote.APIKeyEnv == "" {
		cfg.Embedding.Remote.APIKeyEnv = "HINTO_EMBED_API_KEY"
	}
	if cfg.Embedding.Remote.TimeoutSeconds == 0 {
		cfg.Embedding.Remote.TimeoutSeconds = 30
	}
	if cfg.Embedding.Remote.CacheSize == 0 {
		cfg.Embedding.Remote.CacheSize = 10000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".md"}
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 50
	}
}
