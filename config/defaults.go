package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"

	BackendONNX   = "onnx"
	BackendTFLite = "tflite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.publicurl", "http://localhost:5000")
	v.SetDefault("server.readtimeout", 60*time.Second)
	v.SetDefault("server.writetimeout", 60*time.Second)
	v.SetDefault("server.maxuploadbytes", 10<<20)
	v.SetDefault("server.corsorigin", "*")
	v.SetDefault("server.ratelimit", 0)
	v.SetDefault("server.rateburst", 4)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "")
	v.SetDefault("database.sslmode", "")
	v.SetDefault("database.path", "catascan.db")
	v.SetDefault("database.maxopenconns", 10)
	v.SetDefault("database.slowquery", 200*time.Millisecond)

	v.SetDefault("model.variant", "fundus64")
	v.SetDefault("model.backend", BackendONNX)
	v.SetDefault("model.path", "")
	v.SetDefault("model.library", "")
	v.SetDefault("model.inputname", "inputs")
	v.SetDefault("model.outputname", "output_0")
	v.SetDefault("model.poolsize", 4)
	v.SetDefault("model.threads", 0)

	v.SetDefault("preprocess.normalize", false)

	v.SetDefault("upload.dir", "static/uploads")
	v.SetDefault("upload.uniquenames", true)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsizemb", 100)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxagedays", 28)
}

// envBindings maps config keys to the environment variables the deployment
// scripts already export.
var envBindings = []struct {
	key string
	env string
}{
	{"debug", "DEBUG"},
	{"server.port", "PORT"},
	{"server.publicurl", "PUBLIC_URL"},
	{"database.driver", "DB_DRIVER"},
	{"database.user", "DB_USER"},
	{"database.password", "DB_PASS"},
	{"database.host", "DB_HOST"},
	{"database.port", "DB_PORT"},
	{"database.name", "DB_NAME"},
	{"database.sslmode", "DB_SSLMODE"},
	{"database.path", "DB_PATH"},
	{"model.variant", "MODEL_VARIANT"},
	{"model.backend", "MODEL_BACKEND"},
	{"model.path", "MODEL_PATH"},
	{"model.library", "ONNXRUNTIME_LIB"},
	{"model.poolsize", "MODEL_POOL_SIZE"},
	{"log.file", "LOG_FILE"},
	{"preprocess.normalize", "PREPROCESS_NORMALIZE"},
	{"upload.dir", "UPLOAD_DIR"},
	{"log.level", "LOG_LEVEL"},
}

func bindEnv(v *viper.Viper) error {
	for _, b := range envBindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return fmt.Errorf("binding %s: %w", b.env, err)
		}
	}
	return nil
}
