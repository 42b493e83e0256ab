// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/kadirpekel/paygate/pkg/config"
	"github.com/kadirpekel/paygate/pkg/logger"
)

const (
	// LogFileEnvVar is the environment variable name for log file path
	LogFileEnvVar = "LOG_FILE"
	// LogLevelEnvVar is the environment variable name for log level
	LogLevelEnvVar = "LOG_LEVEL"
	// LogFormatEnvVar is the environment variable name for log format
	LogFormatEnvVar = "LOG_FORMAT"
)

// initLogger initializes the logger.
// Priority: CLI flags > env vars > config file > defaults
func initLogger(cli *CLI, fromConfig config.LoggerConfig) (func(), error) {
	cfg := config.LoggerConfig{
		Level:  firstNonEmpty(cli.LogLevel, os.Getenv(LogLevelEnvVar), fromConfig.Level),
		File:   firstNonEmpty(cli.LogFile, os.Getenv(LogFileEnvVar), fromConfig.File),
		Format: firstNonEmpty(cli.LogFormat, os.Getenv(LogFormatEnvVar), fromConfig.Format),
	}
	cfg.SetDefaults()
	return logger.Setup(cfg)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
