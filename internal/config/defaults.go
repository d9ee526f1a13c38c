package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 6868
	}
	if cfg.Model.Name == "" {
		cfg.Model.Name = "all-MiniLM-L6-v2"
	}
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "models"
	}
	if cfg.Model.Registry == "" {
		cfg.Model.Registry = "https://huggingface.co"
	}
	if cfg.Model.Namespace == "" {
		cfg.Model.Namespace = "sentence-transformers"
	}
	if cfg.Model.Dimensions == 0 {
		cfg.Model.Dimensions = 384
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 256
	}
	if cfg.Model.CacheSize == 0 {
		cfg.Model.CacheSize = 10000
	}
}
