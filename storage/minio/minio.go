package minio

// Config contains S3-compatible storage connection configuration.
// Works with MinIO, Yandex Cloud Storage, AWS S3, and other S3-compatible providers.
// Storage is optional for sending mail: with an empty Endpoint only local
// files can be attached.
type Config struct {
	Endpoint  string `envconfig:"S3_ENDPOINT"`                   // "localhost:9000" for MinIO
	AccessKey string `envconfig:"S3_ACCESS_KEY"`                 // Access key ID
	SecretKey string `envconfig:"S3_SECRET_KEY"`                 // Secret access key
	Region    string `envconfig:"S3_REGION" default:"us-east-1"` // Region name
	Secure    bool   `envconfig:"S3_SECURE" default:"true"`      // Use HTTPS
	Timeout   int    `envconfig:"S3_TIMEOUT" default:"30"`       // Connection check timeout in seconds
}

// Enabled reports whether object storage is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}
