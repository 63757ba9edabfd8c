package main

import (
	"encoding/json"
	"os"

	"github.com/omeid/uconfig"
)

// configFilename is the filename of the config file automatically loaded.
var configFilename = "config.json"

type config struct {
	HTTP struct {
		Port            string `default:"8080"`
		APIKey          string `default:""`
		MaxRPI          uint64 `default:"500"`
		RateLimInterval string `default:"1m"`
	}
	Metrics struct {
		Port string `default:"9090"`
	}
	Log struct {
		Human bool `default:"false"`
		Debug bool `default:"false"`
	}
	DB struct {
		Path string `default:"castsync.db"`
	}
	Redis struct {
		Addr     string `default:"127.0.0.1:6379"`
		Password string `default:""`
		DB       int    `default:"0"`
	}
	Hubs     []hubConfig
	Backfill struct {
		Concurrency int `default:"2"`
		BatchSize   int `default:"100"`
	}
	Realtime struct {
		PollInterval          string `default:"2s"`
		PageSize              int    `default:"100"`
		EnableClientDiscovery bool   `default:"false"`
	}
	EventProcessor struct {
		BatchSize    int    `default:"100"`
		BatchTimeout string `default:"1s"`
	}
	Seed struct {
		RootTargets   []uint64
		ClientTargets []uint64
	}
	BackupScheduler struct {
		Enabled     bool   `default:"false"`
		Dir         string `default:"backups"`
		Interval    string `default:"24h"`
		Vacuum      bool   `default:"true"`
		Compression bool   `default:"true"`
		Pruning     struct {
			Enabled   bool `default:"true"`
			KeepFiles int  `default:"5"`
		}
	}
	Telemetry struct {
		DBPath           string `default:"telemetry.db"`
		CollectFrequency string `default:"15m"`
		Publisher        struct {
			Enabled  bool   `default:"false"`
			Endpoint string `default:""`
			NodeID   string `default:""`
			APIKey   string `default:""`
			Interval string `default:"10m"`
		}
	}
}

type hubConfig struct {
	Name   string
	URL    string
	APIKey string
}

func setupConfig() *config {
	conf := &config{}
	confFiles := uconfig.Files{
		{configFilename, json.Unmarshal},
	}

	c, err := uconfig.Classic(&conf, confFiles)
	if err != nil {
		c.Usage()
		os.Exit(1)
	}

	return conf
}
