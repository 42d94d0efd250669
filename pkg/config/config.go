package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	Neo4j     Neo4jConfig
	Embedding EmbeddingConfig
	Linking   LinkingConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLHours int
}

type MilvusConfig struct {
	Enabled        bool
	Endpoint       string
	APIKey         string
	CollectionName string
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type EmbeddingConfig struct {
	APIKey     string
	Model      string
	Dim        int
	TimeoutSec int
}

// LinkingConfig carries the engine's policy constants. The weight split and
// the similarity/relevance floors are tunable; the shipped defaults are the
// ones the scoring behavior is documented against.
type LinkingConfig struct {
	TopK                   int
	MinSimilarity          float64
	MinRelevance           int
	MaxSuggestions         int
	BidirectionalThreshold float64
	OptimalLinksMin        int
	OptimalLinksMax        int
	URLPrefix              string
	Weights                WeightsConfig
}

type WeightsConfig struct {
	SemanticMax  int
	TopicPoints  int
	TopicMax     int
	KeywordBonus int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/crosslink")

	viper.SetEnvPrefix("CROSSLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/crosslink.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlHours", 168)

	viper.SetDefault("milvus.enabled", true)
	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionName", "article_embeddings")

	viper.SetDefault("neo4j.enabled", true)
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.password", "password")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dim", 1536)
	viper.SetDefault("embedding.timeoutSec", 15)

	viper.SetDefault("linking.topK", 15)
	viper.SetDefault("linking.minSimilarity", 0.5)
	viper.SetDefault("linking.minRelevance", 50)
	viper.SetDefault("linking.maxSuggestions", 5)
	viper.SetDefault("linking.bidirectionalThreshold", 0.8)
	viper.SetDefault("linking.optimalLinksMin", 3)
	viper.SetDefault("linking.optimalLinksMax", 10)
	viper.SetDefault("linking.urlPrefix", "/blog/")
	viper.SetDefault("linking.weights.semanticMax", 60)
	viper.SetDefault("linking.weights.topicPoints", 6)
	viper.SetDefault("linking.weights.topicMax", 30)
	viper.SetDefault("linking.weights.keywordBonus", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
