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
	L1 struct {
		EthEndpoint    string `default:"ws://localhost:8545"`
		ChainID        int64  `default:"5"`
		EscrowContract string `default:""`
	}
	L2 struct {
		EthEndpoint          string `default:"ws://localhost:8546"`
		ChainID              int64  `default:"80001"`
		RafflesContract      string `default:""`
		NativeCurrencyName   string `default:"Ether"`
		NativeCurrencySymbol string `default:"ETH"`
	}
	Signer struct {
		PrivateKey string `default:""`
	}
	Tracker struct {
		CheckInterval string `default:"15s"`
		MinBlockDepth int    `default:"5"`
		StuckInterval string `default:"10m"`
	}
	Feed struct {
		MinBlockDepth   int    `default:"5"`
		ChainAPIBackoff string `default:"15s"`
		NewBlockTimeout string `default:"30s"`
		PersistEvents   bool   `default:"true"`
	}
	Metrics struct {
		Port string `default:"9091"`
	}
	HTTP struct {
		Port string `default:"8081"`
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
