package main

import (
	"encoding/json"
	"os"

	"github.com/omeid/uconfig"
)

// configFilename is the filename of the config file automatically loaded.
var configFilename = "config.json"

type config struct {
	DB struct {
		Path string `default:"mirror.db"`
	}
	L2 struct {
		EthEndpoint            string `default:"ws://localhost:8546"`
		ChainID                int64  `default:"80001"`
		RafflesContract        string `default:""`
		MarketContract         string `default:""`
		WeeklyLotteryContract  string `default:""`
		MonthlyLotteryContract string `default:""`
		NativeCurrencyName     string `default:"Ether"`
		NativeCurrencySymbol   string `default:"ETH"`
	}
	Feed struct {
		MinBlockDepth   int    `default:"5"`
		ChainAPIBackoff string `default:"15s"`
		NewBlockTimeout string `default:"30s"`
		PersistEvents   bool   `default:"true"`
	}
	Backup struct {
		Enabled     bool   `default:"false"`
		Dir         string `default:"backups"`
		Frequency   string `default:"4h"`
		Vacuum      bool   `default:"true"`
		Compression bool   `default:"true"`
		Pruning     struct {
			Enabled   bool `default:"true"`
			KeepFiles int  `default:"5"`
		}
	}
	BackupRestoration struct {
		Enabled bool   `default:"false"`
		URL     string `default:""`
	}
	Metrics struct {
		Port string `default:"9090"`
	}
	HTTP struct {
		Port string `default:"8080"`
	}
	Log struct {
		Human bool `default:"false"`
		Debug bool `default:"false"`
	}
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
